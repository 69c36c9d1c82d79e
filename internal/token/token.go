// Package token models the token set returned by a successful sign-in and
// the parsing of the provider's token-endpoint response.
package token

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/corvauth/signin-manager/internal/autherr"
)

// Set is the bundle of tokens the caller receives. RefreshToken may be
// empty. A zero Expiry means the provider did not communicate one; that is
// not an error.
type Set struct {
	IDToken      string    `json:"idToken"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
}

func (s Set) HasExpiry() bool { return !s.Expiry.IsZero() }

// exchangeResponse is the wire shape of the token endpoint response,
// including the OAuth error fields.
type exchangeResponse struct {
	AccessToken      string `json:"access_token"`
	IDToken          string `json:"id_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// signatureAlgs covers the algorithms providers commonly sign identity
// tokens with. The token is only decoded for its expiry claim, never
// verified here.
var signatureAlgs = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.HS256, jose.EdDSA,
}

// ParseExchangeResponse decodes the token endpoint response body.
//
// An OAuth error field yields a service error whose message is the error
// code and description joined by a single space. Missing identity or
// access tokens yield a service error carrying ErrInvalidServiceResponse.
// Expiry resolution order: expires_in, then the exp claim embedded in the
// identity token, then unknown.
func ParseExchangeResponse(body []byte) (Set, error) {
	var resp exchangeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Set{}, autherr.Service(fmt.Sprintf("decoding token response: %s", err), autherr.ErrInvalidServiceResponse)
	}

	if resp.Error != "" {
		message := resp.Error
		if resp.ErrorDescription != "" {
			message += " " + resp.ErrorDescription
		}
		return Set{}, autherr.Service(message, nil)
	}

	if resp.IDToken == "" || resp.AccessToken == "" {
		return Set{}, autherr.Service("token response is missing mandatory tokens", autherr.ErrInvalidServiceResponse)
	}

	return Set{
		IDToken:      resp.IDToken,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Expiry:       ResolveExpiry(resp.ExpiresIn, resp.IDToken),
	}, nil
}

// ResolveExpiry resolves a token set expiry: a positive expires_in wins,
// then the exp claim embedded in the identity token, then unknown (zero).
func ResolveExpiry(expiresIn int64, idToken string) time.Time {
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
	return expiryFromIDToken(idToken)
}

// expiryFromIDToken reads the exp claim without verifying the signature.
// Any decoding failure resolves to an unknown expiry.
func expiryFromIDToken(idToken string) time.Time {
	tok, err := jwt.ParseSigned(idToken, signatureAlgs)
	if err != nil {
		return time.Time{}
	}

	var claims jwt.Claims
	if err := tok.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return time.Time{}
	}
	if claims.Expiry == nil {
		return time.Time{}
	}

	return claims.Expiry.Time()
}
