package helpers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"yfinance-observer/src/logger"
)

// -----------------------------------------------------------------------------

// ProxyManager holds a list of outbound proxies and the one currently in use.
// With no proxies configured it falls back to the environment proxy settings.
type ProxyManager struct {
	proxies []*url.URL
	index   int
	mu      sync.Mutex
	logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewProxyManager(proxies []string, log *logger.Logger) (*ProxyManager, error) {
	if log == nil {
		log = logger.NewLogger(nil, "ProxyManager")
	}

	pm := &ProxyManager{logger: log}
	for _, p := range proxies {
		if !ValidateProxy(p) {
			return nil, fmt.Errorf("invalid proxy %q", p)
		}
		u, err := url.Parse(FormatProxy(p))
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", p, err)
		}
		pm.proxies = append(pm.proxies, u)
	}
	return pm, nil
}

// -----------------------------------------------------------------------------

func (pm *ProxyManager) GetCurrentProxy() (string, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.proxies) == 0 {
		return "", nil
	}
	return pm.proxies[pm.index].String(), nil
}

// -----------------------------------------------------------------------------

func (pm *ProxyManager) RotateProxy() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.proxies) <= 1 {
		return
	}

	pm.index = (pm.index + 1) % len(pm.proxies)
	pm.logger.Info("Rotating proxy to: %s", pm.proxies[pm.index].Redacted())
}

// -----------------------------------------------------------------------------

func (pm *ProxyManager) HasProxies() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.proxies) > 0
}

// -----------------------------------------------------------------------------

// Proxy is plugged into http.Transport.Proxy; the selection is read per
// request so RotateProxy takes effect without rebuilding the client.
func (pm *ProxyManager) Proxy(req *http.Request) (*url.URL, error) {
	pm.mu.Lock()
	if len(pm.proxies) > 0 {
		u := pm.proxies[pm.index]
		pm.mu.Unlock()
		return u, nil
	}
	pm.mu.Unlock()
	return http.ProxyFromEnvironment(req)
}

// -----------------------------------------------------------------------------

// ValidateProxy checks if a proxy string is roughly valid.
func ValidateProxy(proxyStr string) bool {
	if strings.TrimSpace(proxyStr) == "" {
		return false
	}
	u, err := url.Parse(FormatProxy(proxyStr))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https" || u.Scheme == "socks5"
}

// -----------------------------------------------------------------------------

// FormatProxy ensures the proxy has a scheme.
func FormatProxy(proxyStr string) string {
	if !strings.Contains(proxyStr, "://") {
		return "http://" + proxyStr
	}
	return proxyStr
}
