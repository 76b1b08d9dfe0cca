package interfaces

import (
	"context"
	"net/http"
)

// -----------------------------------------------------------------------------
// INetworkManager opens GET requests, following redirects and attaching
// credentials when asked to.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// -----------------------------------------------------------------------------

	// Open returns the final non-redirect response with an open body.
	// Statuses >= 400 are reported as an error.
	Open(ctx context.Context, url string, headers map[string]string, useAuth bool) (*http.Response, error)
}
