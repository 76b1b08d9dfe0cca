package interfaces

import (
	"net/http"
	"net/url"
)

// -----------------------------------------------------------------------------
// IProxyManager defines the contract for managing and rotating proxies.
// -----------------------------------------------------------------------------

type IProxyManager interface {

	// -----------------------------------------------------------------------------

	// GetCurrentProxy returns the currently selected proxy URL (or empty if none).
	GetCurrentProxy() (string, error)

	// -----------------------------------------------------------------------------

	// RotateProxy switches to the next available proxy.
	RotateProxy()

	// -----------------------------------------------------------------------------

	// HasProxies returns true if there are proxies configured.
	HasProxies() bool

	// -----------------------------------------------------------------------------

	// Proxy is suitable for http.Transport.Proxy.
	Proxy(req *http.Request) (*url.URL, error)
}

// -----------------------------------------------------------------------------
// IProxyRotator moves egress to the next proxy. Implementations with no
// proxies configured treat it as a no-op.
// -----------------------------------------------------------------------------

type IProxyRotator interface {
	RotateProxy()
}
