package yahoo

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"yfinance-observer/src/config"
	"yfinance-observer/src/logger"

	"github.com/stretchr/testify/require"
)

// fakeYahoo answers the auth handshake and any API route a test registers.
type fakeYahoo struct {
	*httptest.Server
	mux *http.ServeMux

	apiHits    atomic.Int32
	cookieHits atomic.Int32

	mu   sync.Mutex
	reqs []*http.Request
}

func newFakeYahoo(t *testing.T) *fakeYahoo {
	t.Helper()
	f := &fakeYahoo{mux: http.NewServeMux()}

	f.mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		f.cookieHits.Add(1)
		w.Header().Add("Set-Cookie", "A3=d=AQABBA&S=AQAAAg; Path=/; Secure")
		w.WriteHeader(http.StatusNotFound)
	})
	f.mux.HandleFunc("/crumb", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "A3=d=AQABBA&S=AQAAAg" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, "abc/de+f")
	})

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cookie" && r.URL.Path != "/crumb" {
			f.apiHits.Add(1)
			f.mu.Lock()
			f.reqs = append(f.reqs, r.Clone(r.Context()))
			f.mu.Unlock()
		}
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

// serveJSON registers a fixed body for path.
func (f *fakeYahoo) serveJSON(path, body string) {
	f.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})
}

func (f *fakeYahoo) lastRequest(t *testing.T) *http.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.reqs, "no API request reached the server")
	return f.reqs[len(f.reqs)-1]
}

// -----------------------------------------------------------------------------

func newTestClient(t *testing.T, f *fakeYahoo) *Client {
	t.Helper()
	cfg := config.Default().MConfig
	cfg.Auth.CookieURL = f.URL + "/cookie"
	cfg.Auth.CrumbURL = f.URL + "/crumb"

	c, err := NewClient(cfg, logger.NewNop(),
		WithEndpoints(Endpoints{Query1: f.URL, Query2: f.URL}),
		WithNow(func() time.Time { return testNow }),
	)
	require.NoError(t, err)
	return c
}
