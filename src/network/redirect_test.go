package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"yfinance-observer/src/helpers"
	"yfinance-observer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain redirects /hop/N to /hop/N+1 until N == total, then answers 200.
func registerChain(f *fakeYahoo, total int) {
	f.mux.HandleFunc("/hop/", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/hop/"))
		if n < total {
			http.Redirect(w, r, fmt.Sprintf("/hop/%d", n+1), http.StatusFound)
			return
		}
		fmt.Fprint(w, `{"done":true}`)
	})
}

func TestRedirectBound(t *testing.T) {
	for _, limit := range []int{0, 1, 3, 5} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			exact := newFakeYahoo(t)
			registerChain(exact, limit)
			s := newTestStack(exact, func(c *models.MConfig) { c.Network.RedirectLimit = limit })

			resp, err := s.opener.Open(context.Background(), exact.URL+"/hop/0", nil, false)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, int32(limit+1), exact.otherHits.Load())

			over := newFakeYahoo(t)
			registerChain(over, limit+1)
			s = newTestStack(over, func(c *models.MConfig) { c.Network.RedirectLimit = limit })

			_, err = s.opener.Open(context.Background(), over.URL+"/hop/0", nil, false)
			var redirectErr *helpers.RedirectError
			require.True(t, errors.As(err, &redirectErr), "got %v", err)
			assert.Equal(t, limit+1, redirectErr.Count)
			assert.Equal(t, limit, redirectErr.Limit)
			assert.Equal(t, fmt.Sprintf("%s/hop/%d", over.URL, limit+1), redirectErr.URL)
		})
	}
}

func TestRedirectStatusesFollowed(t *testing.T) {
	for _, code := range []int{301, 302, 303, 307, 308} {
		f := newFakeYahoo(t)
		f.mux.HandleFunc("/from", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Location", "to")
			w.WriteHeader(code)
		})
		f.mux.HandleFunc("/to", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "{}")
		})
		s := newTestStack(f, nil)

		resp, err := s.opener.Open(context.Background(), f.URL+"/from", nil, false)
		require.NoError(t, err, "status %d", code)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestRedirectWithoutLocationIsConnectionError(t *testing.T) {
	f := newFakeYahoo(t)
	f.mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	})
	s := newTestStack(f, nil)

	_, err := s.opener.Open(context.Background(), f.URL+"/broken", nil, false)
	var connErr *helpers.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, http.StatusFound, connErr.StatusCode)
}

func TestAuthenticatedRequestCarriesCrumbAndCookie(t *testing.T) {
	f := newFakeYahoo(t)
	f.mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{}")
	})
	s := newTestStack(f, nil)

	resp, err := s.opener.Open(context.Background(), f.URL+"/data?a=1", map[string]string{"X-Test": "1"}, true)
	require.NoError(t, err)
	resp.Body.Close()

	reqs := f.requests()
	require.Len(t, reqs, 1)
	r := reqs[0]
	assert.Equal(t, "abc/de+f", r.URL.Query().Get("crumb"))
	assert.Equal(t, "1", r.URL.Query().Get("a"))
	assert.Contains(t, r.URL.RawQuery, "crumb=abc%2Fde%2Bf")
	assert.Equal(t, "A3=d=AQABBA&S=AQAAAg", r.Header.Get("Cookie"))
	assert.Equal(t, s.cfg.Network.UserAgent, r.Header.Get("User-Agent"))
	assert.Equal(t, "*/*", r.Header.Get("Accept"))
	assert.Equal(t, "1", r.Header.Get("X-Test"))
}

func TestUnauthenticatedRequestNeverCarriesCrumb(t *testing.T) {
	f := newFakeYahoo(t)
	f.mux.HandleFunc("/open", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{}")
	})
	s := newTestStack(f, nil)

	resp, err := s.opener.Open(context.Background(), f.URL+"/open", nil, false)
	require.NoError(t, err)
	resp.Body.Close()

	reqs := f.requests()
	require.Len(t, reqs, 1)
	assert.NotContains(t, reqs[0].URL.RawQuery, "crumb")
	assert.Empty(t, reqs[0].Header.Get("Cookie"))
	assert.Equal(t, int32(0), f.cookieHits.Load())
	assert.Equal(t, int32(0), f.crumbHits.Load())
}

func TestErrorStatusReturnsOpenResponse(t *testing.T) {
	f := newFakeYahoo(t)
	f.mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	s := newTestStack(f, nil)

	_, err := s.opener.Open(context.Background(), f.URL+"/gone", nil, false)
	var connErr *helpers.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, http.StatusGone, connErr.StatusCode)
	require.NotNil(t, connErr.Response)

	body, _ := io.ReadAll(connErr.Response.Body)
	connErr.Response.Body.Close()
	assert.Contains(t, string(body), "gone")
}

func TestTransportFailureIsStatusMinusOne(t *testing.T) {
	f := newFakeYahoo(t)
	s := newTestStack(f, nil)
	url := f.URL + "/anything"
	f.Close()

	_, err := s.opener.Open(context.Background(), url, nil, false)
	var connErr *helpers.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, helpers.StatusTransportFailure, connErr.StatusCode)
	assert.Equal(t, url, connErr.URL)
}

func TestBodyReadTimeout(t *testing.T) {
	f := newFakeYahoo(t)
	f.mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	s := newTestStack(f, func(c *models.MConfig) { c.Network.ReadTimeout = 100 * time.Millisecond })

	resp, err := s.opener.Open(context.Background(), f.URL+"/slow", nil, false)
	require.NoError(t, err)
	defer resp.Body.Close()

	start := time.Now()
	_, err = io.ReadAll(resp.Body)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAppendQuery(t *testing.T) {
	assert.Equal(t, "https://h/p?crumb=a%2Fb", AppendQuery("https://h/p", "crumb", "a/b"))
	assert.Equal(t, "https://h/p?x=1&crumb=c", AppendQuery("https://h/p?x=1", "crumb", "c"))
}
