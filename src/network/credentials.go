package network

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"yfinance-observer/src/helpers"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/metrics"
	"yfinance-observer/src/models"
)

// SessionCookieName is the only cookie kept from the bootstrap response.
const SessionCookieName = "A3"

const maxCrumbBody = 1 << 10

// Credential is a point-in-time copy of the cache.
type Credential struct {
	Cookie      string
	Crumb       string
	CrumbExpiry time.Time
}

// Valid reports whether the crumb can still be used at now.
func (c Credential) Valid(now time.Time) bool {
	return c.Cookie != "" && c.Crumb != "" && now.Before(c.CrumbExpiry)
}

// -----------------------------------------------------------------------------

// CredentialCache lazily acquires the session cookie and crumb. The cookie
// lives until Clear; the crumb expires after the configured TTL, which is a
// local policy since the server reports no expiry.
type CredentialCache struct {
	client    *http.Client
	cookieURL string
	crumbURL  string
	userAgent string
	ttl       time.Duration
	timeout   time.Duration
	now       func() time.Time
	logger    *logger.Logger

	// refreshMu serialises acquisition; mu guards the cached values. gen
	// counts Clear calls so a fetch that straddles one is not stored.
	refreshMu sync.Mutex
	mu        sync.RWMutex
	cred      Credential
	gen       uint64
}

type CredentialOption func(*CredentialCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CredentialOption {
	return func(c *CredentialCache) { c.now = now }
}

// -----------------------------------------------------------------------------

func NewCredentialCache(client *http.Client, cfg models.MAuthConfig, userAgent string, log *logger.Logger, opts ...CredentialOption) *CredentialCache {
	if log == nil {
		log = logger.NewLogger(nil, "CredentialCache")
	}
	c := &CredentialCache{
		client:    client,
		cookieURL: cfg.CookieURL,
		crumbURL:  cfg.CrumbURL,
		userAgent: userAgent,
		ttl:       cfg.CrumbTTL,
		timeout:   cfg.RequestTimeout,
		now:       time.Now,
		logger:    log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// -----------------------------------------------------------------------------

// Cookie returns the cached "A3=..." value, acquiring it on a miss.
func (c *CredentialCache) Cookie(ctx context.Context) (string, error) {
	c.mu.RLock()
	cookie := c.cred.Cookie
	c.mu.RUnlock()
	if cookie != "" {
		return cookie, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.cookieLocked(ctx)
}

// -----------------------------------------------------------------------------

// Crumb returns a crumb valid now, acquiring the cookie first if needed.
func (c *CredentialCache) Crumb(ctx context.Context) (string, error) {
	if crumb, ok := c.validCrumb(); ok {
		return crumb, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// another caller may have refreshed while we waited
	if crumb, ok := c.validCrumb(); ok {
		return crumb, nil
	}

	gen := c.generation()
	cookie, err := c.cookieLocked(ctx)
	if err != nil {
		return "", err
	}

	crumb, err := c.fetchCrumb(ctx, cookie)
	metrics.ObserveCredential("crumb", err)
	if err != nil {
		return "", err
	}

	expiry := c.now().Add(c.ttl)
	c.mu.Lock()
	stale := c.gen != gen
	if !stale {
		c.cred.Crumb = crumb
		c.cred.CrumbExpiry = expiry
	}
	c.mu.Unlock()

	if stale {
		c.logger.Debug("Credentials cleared during crumb refresh, not caching it")
		return crumb, nil
	}
	c.logger.Debug("Acquired crumb, valid until %s", expiry.Format(time.RFC3339))
	return crumb, nil
}

// -----------------------------------------------------------------------------

// Clear drops both values; the next authenticated request re-acquires them.
// A refresh already in flight finishes but does not repopulate the cache.
func (c *CredentialCache) Clear() {
	c.mu.Lock()
	c.cred = Credential{}
	c.gen++
	c.mu.Unlock()
	c.logger.Info("Credentials cleared")
}

// -----------------------------------------------------------------------------

func (c *CredentialCache) Credential() Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred
}

// -----------------------------------------------------------------------------

func (c *CredentialCache) validCrumb() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.cred.Valid(c.now()) {
		return "", false
	}
	return c.cred.Crumb, true
}

func (c *CredentialCache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// -----------------------------------------------------------------------------

// cookieLocked must be called with refreshMu held.
func (c *CredentialCache) cookieLocked(ctx context.Context) (string, error) {
	c.mu.RLock()
	cookie, gen := c.cred.Cookie, c.gen
	c.mu.RUnlock()
	if cookie != "" {
		return cookie, nil
	}

	cookie, err := c.fetchCookie(ctx)
	metrics.ObserveCredential("cookie", err)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.cred.Cookie = cookie
	}
	c.mu.Unlock()
	return cookie, nil
}

// -----------------------------------------------------------------------------

func (c *CredentialCache) fetchCookie(ctx context.Context) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cookieURL, nil)
	if err != nil {
		return "", helpers.NewCookieError("invalid cookie bootstrap URL", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", helpers.NewCookieError("cookie bootstrap request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxCrumbBody))

	// The bootstrap host answers 404 while still setting the cookie, so the
	// status is not checked.
	cookie, ok := ExtractCookie(resp.Header, SessionCookieName)
	if !ok {
		return "", helpers.NewCookieError("no "+SessionCookieName+" cookie in bootstrap response", nil)
	}
	c.logger.Debug("Acquired session cookie")
	return cookie, nil
}

// -----------------------------------------------------------------------------

func (c *CredentialCache) fetchCrumb(ctx context.Context, cookie string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.crumbURL, nil)
	if err != nil {
		return "", helpers.NewCrumbError(0, "invalid crumb URL", err)
	}
	c.setHeaders(req)
	req.Header.Set("Cookie", cookie)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", helpers.NewCrumbError(helpers.StatusTransportFailure, "crumb request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", helpers.NewCrumbError(resp.StatusCode, "crumb endpoint returned "+resp.Status, nil)
	}

	line, err := bufio.NewReader(io.LimitReader(resp.Body, maxCrumbBody)).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", helpers.NewCrumbError(resp.StatusCode, "failed to read crumb", err)
	}
	crumb := strings.TrimSpace(line)
	if crumb == "" {
		return "", helpers.NewCrumbError(resp.StatusCode, "crumb endpoint returned an empty body", nil)
	}
	return crumb, nil
}

// -----------------------------------------------------------------------------

func (c *CredentialCache) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
}

func (c *CredentialCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// -----------------------------------------------------------------------------

// ExtractCookie returns "name=value" for the named cookie across every
// Set-Cookie header.
func ExtractCookie(header http.Header, name string) (string, bool) {
	resp := http.Response{Header: header}
	for _, ck := range resp.Cookies() {
		if ck.Name == name && ck.Value != "" {
			return ck.Name + "=" + ck.Value, true
		}
	}
	return "", false
}
