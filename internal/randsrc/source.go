// Package randsrc generates the unpredictable values the sign-in flows
// depend on: the anti-forgery state parameter and the PKCE verifier pair.
package randsrc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"math/big"
)

const MethodS256 = "S256"

type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// Source supplies random values. The engines take it as an interface so
// tests can substitute a deterministic implementation.
type Source interface {
	// State returns a fresh anti-forgery state value.
	State() string
	// PKCE returns a fresh verifier/challenge pair.
	PKCE() PKCE
}

// Crypto is the production Source backed by crypto/rand.
type Crypto struct{}

var _ Source = Crypto{}

func (Crypto) randBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)

	return b
}

func (Crypto) randString(n int) string {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

	ret := make([]byte, n)
	for i := range n {
		num, _ := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		ret[i] = letters[num.Int64()]
	}

	return string(ret)
}

func (c Crypto) State() string {
	return c.randString(32)
}

func (c Crypto) PKCE() PKCE {
	const n = 32

	verifierBuf := make([]byte, base64.RawURLEncoding.EncodedLen(n))
	base64.RawURLEncoding.Encode(verifierBuf, c.randBytes(n))

	challengeSHA := sha256.Sum256(verifierBuf)
	challengeBuf := make([]byte, base64.RawURLEncoding.EncodedLen(len(challengeSHA)))
	base64.RawURLEncoding.Encode(challengeBuf, challengeSHA[:])

	return PKCE{
		Verifier:  string(verifierBuf),
		Challenge: string(challengeBuf),
		Method:    MethodS256,
	}
}

// Fixed is a Source that always returns the same values. Test use only.
type Fixed struct {
	StateValue string
	PKCEValue  PKCE
}

var _ Source = Fixed{}

func (f Fixed) State() string { return f.StateValue }

func (f Fixed) PKCE() PKCE { return f.PKCEValue }
