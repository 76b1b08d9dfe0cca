package network

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
	"yfinance-observer/src/models"
)

// fakeYahoo serves the cookie and crumb endpoints plus whatever routes a test
// registers, counting every hit.
type fakeYahoo struct {
	*httptest.Server
	mux *http.ServeMux

	cookieHits atomic.Int32
	crumbHits  atomic.Int32
	otherHits  atomic.Int32

	mu       sync.Mutex
	crumb    string
	setA3    bool
	lastReqs []*http.Request

	// crumbGate, when set, holds every crumb request until it is closed.
	// Each held request is announced on crumbHeld first.
	crumbGate chan struct{}
	crumbHeld chan struct{}
}

func newFakeYahoo(t *testing.T) *fakeYahoo {
	t.Helper()
	f := &fakeYahoo{mux: http.NewServeMux(), crumb: "abc/de+f", setA3: true}

	f.mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		f.cookieHits.Add(1)
		w.Header().Add("Set-Cookie", "B=other; Path=/")
		f.mu.Lock()
		if f.setA3 {
			w.Header().Add("Set-Cookie", "A3=d=AQABBA&S=AQAAAg; Path=/; Secure")
		}
		f.mu.Unlock()
		w.Header().Add("Set-Cookie", "GUC=xyz; Path=/")
		w.WriteHeader(http.StatusNotFound)
	})
	f.mux.HandleFunc("/crumb", func(w http.ResponseWriter, r *http.Request) {
		f.crumbHits.Add(1)
		f.mu.Lock()
		gate, held := f.crumbGate, f.crumbHeld
		f.mu.Unlock()
		if gate != nil {
			held <- struct{}{}
			<-gate
		}
		if r.Header.Get("Cookie") != "A3=d=AQABBA&S=AQAAAg" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		crumb := f.crumb
		f.mu.Unlock()
		fmt.Fprintln(w, crumb)
	})

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cookie" && r.URL.Path != "/crumb" {
			f.otherHits.Add(1)
			f.mu.Lock()
			f.lastReqs = append(f.lastReqs, r.Clone(r.Context()))
			f.mu.Unlock()
		}
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeYahoo) requests() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Request(nil), f.lastReqs...)
}

// -----------------------------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// -----------------------------------------------------------------------------

type testStack struct {
	cfg    *models.MConfig
	creds  *CredentialCache
	opener *RedirectingClient
	exec   *Executor
}

func newTestStack(f *fakeYahoo, mutate func(*models.MConfig), opts ...CredentialOption) *testStack {
	cfg := config.Default().MConfig
	cfg.Auth.CookieURL = f.URL + "/cookie"
	cfg.Auth.CrumbURL = f.URL + "/crumb"
	if mutate != nil {
		mutate(cfg)
	}

	log := logger.NewNop()
	client := NewHTTPClient(cfg.Network, nil)
	creds := NewCredentialCache(client, cfg.Auth, cfg.Network.UserAgent, log, opts...)
	opener := NewRedirectingClient(client, creds, cfg.Network, log)
	return &testStack{
		cfg:    cfg,
		creds:  creds,
		opener: opener,
		exec:   NewExecutor(opener, 0, log),
	}
}
