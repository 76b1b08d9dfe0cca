package interfaces

import "context"

// -----------------------------------------------------------------------------
// ICredentialProvider supplies the cookie and crumb required by authenticated
// endpoints.
// -----------------------------------------------------------------------------

type ICredentialProvider interface {

	// Cookie returns the session cookie header value ("A3=...").
	Cookie(ctx context.Context) (string, error)

	// -----------------------------------------------------------------------------

	// Crumb returns a crumb that is valid at the time of the call.
	Crumb(ctx context.Context) (string, error)

	// -----------------------------------------------------------------------------

	// Clear drops the cached cookie and crumb.
	Clear()
}
