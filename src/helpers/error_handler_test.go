package helpers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"yfinance-observer/src/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCredentials struct{ cleared int }

func (f *fakeCredentials) Cookie(context.Context) (string, error) { return "A3=x", nil }
func (f *fakeCredentials) Crumb(context.Context) (string, error)  { return "crumb", nil }
func (f *fakeCredentials) Clear()                                 { f.cleared++ }

type fakeRotator struct{ rotated int }

func (f *fakeRotator) RotateProxy() { f.rotated++ }

func TestErrorTypesUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("fetch: %w", NewConnectionError(StatusTransportFailure, "https://x", cause))

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, -1, connErr.StatusCode)
	assert.Equal(t, "https://x", connErr.URL)
	assert.ErrorIs(t, err, cause)

	var redirectErr *RedirectError
	require.True(t, errors.As(NewRedirectError(6, 5, "https://loop"), &redirectErr))
	assert.Equal(t, 6, redirectErr.Count)
	assert.Equal(t, 5, redirectErr.Limit)
}

func TestResponseParsingErrorTruncatesContent(t *testing.T) {
	body := make([]byte, 1000)
	for i := range body {
		body[i] = 'a'
	}
	err := NewResponseParsingError("bad json", body, nil)
	assert.Len(t, err.Content, maxErrorContent+3)
}

func TestIsAuthFailure(t *testing.T) {
	assert.True(t, IsAuthFailure(NewConnectionError(http.StatusUnauthorized, "u", nil)))
	assert.True(t, IsAuthFailure(NewConnectionError(http.StatusForbidden, "u", nil)))
	assert.True(t, IsAuthFailure(NewCrumbError(500, "no crumb", nil)))
	assert.True(t, IsAuthFailure(NewCookieError("no cookie", nil)))
	assert.False(t, IsAuthFailure(NewConnectionError(http.StatusNotFound, "u", nil)))
	assert.False(t, IsAuthFailure(errors.New("other")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewConnectionError(StatusTransportFailure, "u", nil)))
	assert.True(t, IsRetryable(NewConnectionError(http.StatusTooManyRequests, "u", nil)))
	assert.True(t, IsRetryable(NewConnectionError(http.StatusBadGateway, "u", nil)))
	assert.False(t, IsRetryable(NewConnectionError(http.StatusNotFound, "u", nil)))
	assert.False(t, IsRetryable(NewIllegalArgumentError("blank")))
}

func TestRetryWithBackoff(t *testing.T) {
	calls := 0
	res, err := RetryWithBackoff(context.Background(), logger.NewNop(), "op", 3, time.Millisecond, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("boom")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RetryWithBackoff(ctx, nil, "op", 5, time.Hour, func() (int, error) {
		return 0, errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteWithRetryClearsCredentialsOnAuthFailure(t *testing.T) {
	creds := &fakeCredentials{}
	h := NewErrorHandler(creds, nil, logger.NewNop())
	h.BaseDelay = time.Millisecond

	calls := 0
	res, err := ExecuteWithRetry(context.Background(), h, "quote", 3, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewConnectionError(http.StatusUnauthorized, "u", nil)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 1, creds.cleared)
}

func TestExecuteWithRetryDoesNotRetryClientErrors(t *testing.T) {
	creds := &fakeCredentials{}
	h := NewErrorHandler(creds, &fakeRotator{}, logger.NewNop())
	h.BaseDelay = time.Millisecond

	calls := 0
	_, err := ExecuteWithRetry(context.Background(), h, "quote", 3, func(context.Context) (int, error) {
		calls++
		return 0, NewConnectionError(http.StatusNotFound, "u", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, creds.cleared)
	assert.Equal(t, 0, h.ErrorCount())
}

func TestExecuteWithRetryRecoversOnFinalAttempt(t *testing.T) {
	creds := &fakeCredentials{}
	h := NewErrorHandler(creds, nil, logger.NewNop())

	_, err := ExecuteWithRetry(context.Background(), h, "history", 1, func(context.Context) (int, error) {
		return 0, NewCrumbError(http.StatusUnauthorized, "crumb refused", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, creds.cleared, "the next call must start from fresh credentials")
	assert.Equal(t, 1, h.ErrorCount())
}

func TestRecoverRotatesProxy(t *testing.T) {
	creds := &fakeCredentials{}
	proxies := &fakeRotator{}
	h := NewErrorHandler(creds, proxies, logger.NewNop())

	h.Recover("quote", NewConnectionError(StatusTransportFailure, "u", errors.New("refused")))
	assert.Equal(t, 1, proxies.rotated)
	assert.Equal(t, 0, creds.cleared)

	h.ResetErrorCount()
	h.Recover("quote", NewConnectionError(http.StatusUnauthorized, "u", nil))
	assert.Equal(t, 1, creds.cleared)
	assert.Equal(t, 1, proxies.rotated, "first auth failure only clears")

	h.Recover("quote", NewConnectionError(http.StatusForbidden, "u", nil))
	assert.Equal(t, 2, creds.cleared)
	assert.Equal(t, 2, proxies.rotated)
	assert.Equal(t, 2, h.ErrorCount())
}

func TestExecuteWithRetrySuccessResetsErrorCount(t *testing.T) {
	h := NewErrorHandler(nil, &fakeRotator{}, logger.NewNop())
	h.BaseDelay = time.Millisecond

	calls := 0
	_, err := ExecuteWithRetry(context.Background(), h, "lookup", 3, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewConnectionError(http.StatusBadGateway, "u", nil)
		}
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, h.ErrorCount())
}
