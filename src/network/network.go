package network

import (
	"net"
	"net/http"
	"time"

	"yfinance-observer/src/helpers"
	"yfinance-observer/src/interfaces"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"
)

// NetworkManager owns the HTTP stack shared by every request: one client,
// one credential cache, one redirecting opener and one executor.
type NetworkManager struct {
	Config       *models.MConfig
	ProxyManager interfaces.IProxyManager
	Client       *http.Client
	Credentials  *CredentialCache
	Opener       *RedirectingClient
	Executor     *Executor
	Logger       *logger.Logger
}

// -----------------------------------------------------------------------------

func NewNetworkManager(cfg *models.MConfig, log *logger.Logger) (*NetworkManager, error) {
	if log == nil {
		log = logger.NewLogger(cfg, "Network")
	}

	proxies, err := helpers.NewProxyManager(cfg.Network.Proxies, log.Named("proxy"))
	if err != nil {
		return nil, err
	}

	nm := &NetworkManager{
		Config:       cfg,
		ProxyManager: proxies,
		Logger:       log,
	}
	nm.Client = NewHTTPClient(cfg.Network, proxies)
	nm.Credentials = NewCredentialCache(nm.Client, cfg.Auth, cfg.Network.UserAgent, log.Named("credentials"))
	nm.Opener = NewRedirectingClient(nm.Client, nm.Credentials, cfg.Network, log.Named("http"))
	nm.Executor = NewExecutor(nm.Opener, cfg.Network.RequestsPerSecond, log.Named("executor"))
	return nm, nil
}

// -----------------------------------------------------------------------------

// NewHTTPClient builds a client with independent connect and response-header
// timeouts. Redirects are never followed automatically.
func NewHTTPClient(cfg models.MNetworkConfig, proxies interfaces.IProxyManager) *http.Client {
	proxy := http.ProxyFromEnvironment
	if proxies != nil {
		proxy = proxies.Proxy
	}

	transport := &http.Transport{
		Proxy:                 proxy,
		DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: cfg.ReadTimeout,
	}

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// -----------------------------------------------------------------------------

// RotateProxy switches the egress proxy. The cookie is bound to the old
// session, so cached credentials are dropped as well.
func (nm *NetworkManager) RotateProxy() {
	if !nm.ProxyManager.HasProxies() {
		return
	}

	nm.ProxyManager.RotateProxy()
	nm.Credentials.Clear()
	if t, ok := nm.Client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}
