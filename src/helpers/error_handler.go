package helpers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"yfinance-observer/src/interfaces"
	"yfinance-observer/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type YFinanceError struct {
	Message string
	Cause   error
}

func (e *YFinanceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *YFinanceError) Unwrap() error {
	return e.Cause
}

// -----------------------------------------------------------------------------

// ConnectionError reports a transport failure (StatusCode -1) or an HTTP
// status >= 400. URL is the originally requested URL.
type ConnectionError struct {
	YFinanceError
	StatusCode int
	URL        string

	// Response is the still-open error response, if any. The receiver owns
	// closing its body.
	Response *http.Response
}

func NewConnectionError(statusCode int, url string, cause error) *ConnectionError {
	msg := fmt.Sprintf("request to %s failed with status %d", url, statusCode)
	if statusCode == StatusTransportFailure {
		msg = fmt.Sprintf("request to %s failed", url)
	}
	return &ConnectionError{
		YFinanceError: YFinanceError{Message: msg, Cause: cause},
		StatusCode:    statusCode,
		URL:           url,
	}
}

// StatusTransportFailure marks a ConnectionError with no HTTP status.
const StatusTransportFailure = -1

// RedirectError is returned when a redirect chain exceeds its limit.
type RedirectError struct {
	YFinanceError
	Count int
	Limit int
	URL   string
}

func NewRedirectError(count, limit int, url string) *RedirectError {
	return &RedirectError{
		YFinanceError: YFinanceError{Message: fmt.Sprintf("too many redirects (%d > %d), last location %s", count, limit, url)},
		Count:         count,
		Limit:         limit,
		URL:           url,
	}
}

type CookieError struct{ YFinanceError }

func NewCookieError(message string, cause error) *CookieError {
	return &CookieError{YFinanceError{Message: message, Cause: cause}}
}

type CrumbError struct {
	YFinanceError
	StatusCode int
}

func NewCrumbError(statusCode int, message string, cause error) *CrumbError {
	return &CrumbError{YFinanceError: YFinanceError{Message: message, Cause: cause}, StatusCode: statusCode}
}

// ResponseParsingError carries a snippet of the offending content.
type ResponseParsingError struct {
	YFinanceError
	Content string
}

const maxErrorContent = 256

func NewResponseParsingError(message string, content []byte, cause error) *ResponseParsingError {
	snippet := string(content)
	if len(snippet) > maxErrorContent {
		snippet = snippet[:maxErrorContent] + "..."
	}
	return &ResponseParsingError{YFinanceError: YFinanceError{Message: message, Cause: cause}, Content: snippet}
}

type IllegalArgumentError struct{ YFinanceError }

func NewIllegalArgumentError(format string, args ...interface{}) *IllegalArgumentError {
	return &IllegalArgumentError{YFinanceError{Message: fmt.Sprintf(format, args...)}}
}

type IllegalStateError struct{ YFinanceError }

func NewIllegalStateError(format string, args ...interface{}) *IllegalStateError {
	return &IllegalStateError{YFinanceError{Message: fmt.Sprintf(format, args...)}}
}

type DatabaseError struct{ YFinanceError }

func NewDatabaseError(message string, cause error) *DatabaseError {
	return &DatabaseError{YFinanceError{Message: message, Cause: cause}}
}

// -----------------------------------------------------------------------------

// IsAuthFailure reports whether err is a 401/403 or a credential acquisition
// failure.
func IsAuthFailure(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr.StatusCode == http.StatusUnauthorized || connErr.StatusCode == http.StatusForbidden
	}
	var crumbErr *CrumbError
	if errors.As(err, &crumbErr) {
		return true
	}
	var cookieErr *CookieError
	return errors.As(err, &cookieErr)
}

// -----------------------------------------------------------------------------

// IsRetryable reports whether err is worth another attempt: transport
// failures, 429 and 5xx.
func IsRetryable(err error) bool {
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		return false
	}
	return connErr.StatusCode == StatusTransportFailure ||
		connErr.StatusCode == http.StatusTooManyRequests ||
		connErr.StatusCode >= 500
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times with exponential backoff.
func RetryWithBackoff[T any](ctx context.Context, log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	if maxRetries < 1 {
		maxRetries = 1
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		if log != nil {
			log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, maxRetries, operation, err, delay)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

// AuthFailuresBeforeRotate is how many consecutive auth failures are blamed
// on the credentials before the egress proxy is blamed instead.
const AuthFailuresBeforeRotate = 2

// ErrorHandler recovers from failures between attempts. Auth failures clear
// the cached credentials; transport failures and repeated auth failures
// rotate the proxy when a rotator is set. Safe for concurrent use.
type ErrorHandler struct {
	Logger      *logger.Logger
	Credentials interfaces.ICredentialProvider
	Proxies     interfaces.IProxyRotator
	BaseDelay   time.Duration

	errorCount atomic.Int32
}

func NewErrorHandler(credentials interfaces.ICredentialProvider, proxies interfaces.IProxyRotator, log *logger.Logger) *ErrorHandler {
	if log == nil {
		log = logger.NewLogger(nil, "ErrorHandler")
	}
	return &ErrorHandler{
		Logger:      log,
		Credentials: credentials,
		Proxies:     proxies,
		BaseDelay:   time.Second,
	}
}

// -----------------------------------------------------------------------------

// ErrorCount is the number of consecutive failed attempts.
func (e *ErrorHandler) ErrorCount() int {
	return int(e.errorCount.Load())
}

func (e *ErrorHandler) ResetErrorCount() {
	e.errorCount.Store(0)
}

// -----------------------------------------------------------------------------

// Recover records a failed attempt and prepares the next one.
func (e *ErrorHandler) Recover(operation string, err error) {
	failures := int(e.errorCount.Add(1))

	switch {
	case IsAuthFailure(err):
		if e.Credentials != nil {
			e.Logger.Info("%s: auth failure, clearing cached credentials", operation)
			e.Credentials.Clear()
		}
		if e.Proxies != nil && failures >= AuthFailuresBeforeRotate {
			e.Logger.Warning("%s: %d consecutive failures, rotating proxy", operation, failures)
			e.Proxies.RotateProxy()
		}
	case isTransportFailure(err):
		if e.Proxies != nil {
			e.Logger.Warning("%s: transport failure, rotating proxy", operation)
			e.Proxies.RotateProxy()
		}
	}
}

func isTransportFailure(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr) && connErr.StatusCode == StatusTransportFailure
}

// -----------------------------------------------------------------------------

// ExecuteWithRetry runs fn up to maxRetries times. Every failure goes through
// Recover, including the last, so a later call starts from fresh credentials.
// Errors other than auth failures are retried only when IsRetryable.
func ExecuteWithRetry[T any](ctx context.Context, e *ErrorHandler, operation string, maxRetries int, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if maxRetries < 1 {
		maxRetries = 1
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			e.ResetErrorCount()
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}

		authFailure := IsAuthFailure(err)
		if authFailure || IsRetryable(err) {
			e.Recover(operation, err)
		}
		if attempt == maxRetries-1 || (!authFailure && !IsRetryable(err)) {
			e.Logger.Error("%s failed (attempt %d/%d): %v", operation, attempt+1, maxRetries, err)
			return zero, err
		}

		delay := e.BaseDelay * (1 << attempt)
		e.Logger.Warning("%s failed (attempt %d/%d): %v. Retrying in %v", operation, attempt+1, maxRetries, err, delay)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, &YFinanceError{Message: fmt.Sprintf("%s failed after %d attempts", operation, maxRetries)}
}
