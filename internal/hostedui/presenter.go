package hostedui

import (
	"context"
	"errors"
	"net/url"
)

// Presentation failure modes. Implementations return these (possibly
// wrapped) so the engine can map them onto the error taxonomy.
var (
	// ErrCancelled: the user aborted the browser session.
	ErrCancelled = errors.New("presentation cancelled by user")
	// ErrInvalidContext: the supplied presentation context cannot host a
	// browser session. Signals host-application misuse.
	ErrInvalidContext = errors.New("invalid presentation context")
	// ErrUnableToStart: the session could not be started.
	ErrUnableToStart = errors.New("unable to start presentation session")
)

// Presenter hands the authorization URL to a browser session and blocks
// until the provider redirects back, returning the callback query
// parameters. The engine imposes no timeout; callers bound the context.
type Presenter interface {
	Present(ctx context.Context, authorizationURL, callbackURLScheme string) (url.Values, error)
}
