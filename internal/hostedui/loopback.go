package hostedui

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	slogctx "github.com/veqryn/slog-context"
)

// Loopback presents the browser session by listening on the redirect URI's
// loopback address and capturing the provider's callback query. It is the
// presentation context used by the CLI.
type Loopback struct {
	redirectURI string
	// OpenURL launches the user's browser. When nil the URL is logged and
	// the user opens it by hand.
	OpenURL func(url string) error
}

var _ Presenter = (*Loopback)(nil)

func NewLoopback(redirectURI string) *Loopback {
	return &Loopback{redirectURI: redirectURI}
}

func (l *Loopback) Present(ctx context.Context, authorizationURL, _ string) (url.Values, error) {
	redirect, err := url.Parse(l.redirectURI)
	if err != nil || redirect.Scheme != "http" {
		return nil, fmt.Errorf("loopback presenter needs an http redirect URI, got %q: %w", l.redirectURI, ErrInvalidContext)
	}

	host := redirect.Host
	if hostname := redirect.Hostname(); hostname != "localhost" {
		ip := net.ParseIP(hostname)
		if ip == nil || !ip.IsLoopback() {
			return nil, fmt.Errorf("redirect host %q is not a loopback address: %w", host, ErrInvalidContext)
		}
	}

	listener, err := net.Listen("tcp", host)
	if err != nil {
		return nil, errors.Join(ErrUnableToStart, err)
	}

	callback := make(chan url.Values, 1)
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if redirect.Path != "" && r.URL.Path != redirect.Path {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintln(w, "Sign-in received. You may close this window.")

		select {
		case callback <- r.URL.Query():
		default:
		}
	})}

	go func() { _ = server.Serve(listener) }()
	defer func() { _ = server.Shutdown(context.Background()) }()

	if l.OpenURL != nil {
		if err := l.OpenURL(authorizationURL); err != nil {
			return nil, errors.Join(ErrUnableToStart, err)
		}
	} else {
		slogctx.Info(ctx, "Open the sign-in URL in your browser", "url", authorizationURL)
	}

	select {
	case <-ctx.Done():
		return nil, errors.Join(ErrCancelled, ctx.Err())
	case query := <-callback:
		return query, nil
	}
}
