package token_test

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvauth/signin-manager/internal/autherr"
	"github.com/corvauth/signin-manager/internal/token"
)

// makeIDToken builds a syntactically valid, unverifiable JWT. The expiry
// claim is embedded when exp is non-zero.
func makeIDToken(t *testing.T, exp int64) string {
	t.Helper()

	encode := func(s string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(s))
	}

	header := encode(`{"alg":"RS256","typ":"JWT"}`)
	claims := `{"sub":"user-1"}`
	if exp != 0 {
		claims = fmt.Sprintf(`{"sub":"user-1","exp":%d}`, exp)
	}

	return header + "." + encode(claims) + "." + encode("not-a-real-signature")
}

func TestParseExchangeResponse(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Unix()
	idTokenWithExp := makeIDToken(t, exp)
	idTokenNoExp := makeIDToken(t, 0)

	tests := []struct {
		name      string
		body      string
		want      func(*testing.T, token.Set)
		errAssert assert.ErrorAssertionFunc
	}{
		{
			name: "expiry from expires_in",
			body: fmt.Sprintf(`{"id_token":%q,"access_token":"access","refresh_token":"refresh","expires_in":3600}`, idTokenNoExp),
			want: func(t *testing.T, set token.Set) {
				assert.Equal(t, "access", set.AccessToken)
				assert.Equal(t, "refresh", set.RefreshToken)
				assert.WithinDuration(t, time.Now().Add(time.Hour), set.Expiry, 5*time.Second)
			},
			errAssert: assert.NoError,
		},
		{
			name: "expiry falls back to the id token exp claim",
			body: fmt.Sprintf(`{"id_token":%q,"access_token":"access"}`, idTokenWithExp),
			want: func(t *testing.T, set token.Set) {
				assert.Equal(t, time.Unix(exp, 0).UTC(), set.Expiry.UTC())
			},
			errAssert: assert.NoError,
		},
		{
			name: "missing expiry everywhere is not an error",
			body: fmt.Sprintf(`{"id_token":%q,"access_token":"access"}`, idTokenNoExp),
			want: func(t *testing.T, set token.Set) {
				assert.False(t, set.HasExpiry())
			},
			errAssert: assert.NoError,
		},
		{
			name: "undecodable id token still resolves to unknown expiry",
			body: `{"id_token":"garbage","access_token":"access"}`,
			want: func(t *testing.T, set token.Set) {
				assert.False(t, set.HasExpiry())
			},
			errAssert: assert.NoError,
		},
		{
			name: "missing refresh token is legal",
			body: fmt.Sprintf(`{"id_token":%q,"access_token":"access","expires_in":60}`, idTokenNoExp),
			want: func(t *testing.T, set token.Set) {
				assert.Empty(t, set.RefreshToken)
			},
			errAssert: assert.NoError,
		},
		{
			name: "missing access token is a parsing failure",
			body: fmt.Sprintf(`{"id_token":%q}`, idTokenNoExp),
			errAssert: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, autherr.ErrInvalidServiceResponse)
			},
		},
		{
			name: "missing id token is a parsing failure",
			body: `{"access_token":"access"}`,
			errAssert: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, autherr.ErrInvalidServiceResponse)
			},
		},
		{
			name: "non-json body is a parsing failure",
			body: `<html>nope</html>`,
			errAssert: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, autherr.ErrInvalidServiceResponse)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := token.ParseExchangeResponse([]byte(tt.body))
			tt.errAssert(t, err)
			if tt.want != nil {
				tt.want(t, set)
			}
		})
	}
}

func TestParseExchangeResponse_OAuthError(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			name:    "error with description",
			body:    `{"error":"invalid_grant","error_description":"Some error"}`,
			wantMsg: "invalid_grant Some error",
		},
		{
			name:    "error without description",
			body:    `{"error":"invalid_grant"}`,
			wantMsg: "invalid_grant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := token.ParseExchangeResponse([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, autherr.IsKind(err, autherr.KindService))

			var authErr *autherr.Error
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.wantMsg, authErr.Message)
		})
	}
}
