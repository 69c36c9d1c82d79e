// Package hostedui drives the browser-delegated sign-in flow: anti-forgery
// state generation, session presentation, callback validation and the
// authorization-code-to-token exchange.
package hostedui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	slogctx "github.com/veqryn/slog-context"

	"github.com/corvauth/signin-manager/internal/autherr"
	"github.com/corvauth/signin-manager/internal/randsrc"
	"github.com/corvauth/signin-manager/internal/token"
)

// Options configures one hosted-UI flow. Scopes default to the standard
// OpenID triple when empty.
type Options struct {
	Domain             string
	ClientID           string
	Scopes             []string
	SignInRedirectURI  string
	SignOutRedirectURI string
	IdentityProvider   string
	DisablePKCE        bool
}

var defaultScopes = []string{"openid", "profile", "email"}

// Engine runs the hosted-UI exchange. It holds no per-attempt state; every
// Run call generates fresh state and PKCE material.
type Engine struct {
	opts   Options
	rand   randsrc.Source
	client *http.Client
}

func NewEngine(opts Options, rand randsrc.Source, client *http.Client) *Engine {
	if rand == nil {
		rand = randsrc.Crypto{}
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Engine{opts: opts, rand: rand, client: client}
}

// Callback is the validated outcome of one browser round trip, ready for
// the code exchange. The anti-forgery state is already checked and gone.
type Callback struct {
	Code        string
	Verifier    string
	RedirectURI string
}

// Run executes the full flow: GenerateState, PresentSession,
// ValidateCallback, ExchangeCode, ParseTokens. Configuration is validated
// before anything touches the network.
func (e *Engine) Run(ctx context.Context, presenter Presenter) (token.Set, error) {
	callback, err := e.Authorize(ctx, presenter)
	if err != nil {
		return token.Set{}, err
	}

	return e.Exchange(ctx, callback)
}

// ValidateConfiguration checks the static configuration without side
// effects, so callers can fail fast before starting an attempt.
func (e *Engine) ValidateConfiguration() error {
	_, err := e.validateConfig()
	return err
}

// Authorize covers GenerateState through ValidateCallback: it presents the
// browser session and returns the validated authorization code.
func (e *Engine) Authorize(ctx context.Context, presenter Presenter) (Callback, error) {
	redirectURI, err := e.validateConfig()
	if err != nil {
		return Callback{}, err
	}

	state := e.rand.State()
	var pkce randsrc.PKCE
	if !e.opts.DisablePKCE {
		pkce = e.rand.PKCE()
	}

	authorizationURL, err := e.authorizationURL(state, pkce, redirectURI)
	if err != nil {
		return Callback{}, err
	}

	query, err := presenter.Present(ctx, authorizationURL, redirectURI.Scheme)
	if err != nil {
		return Callback{}, mapPresentationError(err)
	}

	code, err := validateCallback(query, state)
	if err != nil {
		return Callback{}, err
	}

	slogctx.Debug(ctx, "Hosted UI callback validated")

	return Callback{
		Code:        code,
		Verifier:    pkce.Verifier,
		RedirectURI: redirectURI.String(),
	}, nil
}

// Exchange posts the authorization code to the token endpoint and parses
// the token set.
func (e *Engine) Exchange(ctx context.Context, callback Callback) (token.Set, error) {
	return e.exchangeCode(ctx, callback.Code, callback.Verifier, callback.RedirectURI)
}

// SignOutURL builds the provider's logout URL for the configured client.
func (e *Engine) SignOutURL() (string, error) {
	redirectURI, err := parseAbsoluteURI("sign-out redirect URI", e.opts.SignOutRedirectURI)
	if err != nil {
		return "", err
	}

	u, err := e.endpoint("/logout")
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("client_id", e.opts.ClientID)
	q.Set("logout_uri", redirectURI.String())
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// validateConfig fails fast on malformed configuration so no attempt with
// a bad redirect URI ever reaches the network.
func (e *Engine) validateConfig() (*url.URL, error) {
	if e.opts.Domain == "" {
		return nil, autherr.Configuration("hosted UI domain is not set")
	}
	if e.opts.ClientID == "" {
		return nil, autherr.Configuration("hosted UI client ID is not set")
	}

	return parseAbsoluteURI("sign-in redirect URI", e.opts.SignInRedirectURI)
}

func parseAbsoluteURI(what, value string) (*url.URL, error) {
	u, err := url.Parse(value)
	if err != nil {
		return nil, autherr.Configuration(fmt.Sprintf("%s %q is not a valid URI", what, value))
	}
	if !u.IsAbs() || u.Host == "" && u.Opaque == "" {
		return nil, autherr.Configuration(fmt.Sprintf("%s %q is not an absolute URI", what, value))
	}

	return u, nil
}

func (e *Engine) endpoint(path string) (*url.URL, error) {
	domain := e.opts.Domain
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}

	u, err := url.Parse(domain)
	if err != nil {
		return nil, autherr.Configuration(fmt.Sprintf("hosted UI domain %q is not a valid URI", e.opts.Domain))
	}
	u.Path, err = url.JoinPath(u.Path, path)
	if err != nil {
		return nil, autherr.Configuration(fmt.Sprintf("joining %s onto domain %q", path, e.opts.Domain))
	}

	return u, nil
}

func (e *Engine) authorizationURL(state string, pkce randsrc.PKCE, redirectURI *url.URL) (string, error) {
	u, err := e.endpoint("/oauth2/authorize")
	if err != nil {
		return "", err
	}

	scopes := e.opts.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", e.opts.ClientID)
	q.Set("scope", strings.Join(scopes, " "))
	q.Set("redirect_uri", redirectURI.String())
	q.Set("state", state)
	if pkce.Challenge != "" {
		q.Set("code_challenge", pkce.Challenge)
		q.Set("code_challenge_method", pkce.Method)
	}
	if e.opts.IdentityProvider != "" {
		q.Set("idp_identifier", e.opts.IdentityProvider)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func mapPresentationError(err error) error {
	switch {
	case errors.Is(err, ErrCancelled):
		return autherr.Cancelled()
	case errors.Is(err, ErrInvalidContext):
		return autherr.InvalidState("presentation context cannot host a browser session")
	default:
		return autherr.Service("presenting the browser session", err)
	}
}

// validateCallback enforces the anti-forgery contract: the returned state
// must byte-for-byte equal the generated one, checked before the code is
// even looked at.
func validateCallback(query url.Values, wantState string) (string, error) {
	if errCode := query.Get("error"); errCode != "" {
		message := errCode
		if desc := query.Get("error_description"); desc != "" {
			message += " " + desc
		}
		return "", autherr.Service(message, nil)
	}

	if query.Get("state") != wantState {
		return "", autherr.Service("state mismatch", nil)
	}

	code := query.Get("code")
	if code == "" {
		return "", autherr.Service("callback is missing the authorization code", autherr.ErrInvalidServiceResponse)
	}

	return code, nil
}

func (e *Engine) exchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (token.Set, error) {
	endpoint, err := e.endpoint("/oauth2/token")
	if err != nil {
		return token.Set{}, err
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", e.opts.ClientID)
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	if codeVerifier != "" {
		data.Set("code_verifier", codeVerifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(data.Encode()))
	if err != nil {
		return token.Set{}, autherr.Service("creating token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		return token.Set{}, autherr.Service("executing token request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return token.Set{}, autherr.Service("reading token response", err)
	}

	// The body is parsed regardless of status: OAuth error bodies carry
	// the error/error_description pair the caller message is built from.
	return token.ParseExchangeResponse(body)
}
