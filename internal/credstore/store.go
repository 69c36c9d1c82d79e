// Package credstore persists finalized token sets. The state machine
// stores fire-and-forget after a successful sign-in; encryption at rest is
// the implementation's concern, not modeled here.
package credstore

import (
	"context"
	"errors"

	"github.com/corvauth/signin-manager/internal/token"
)

var ErrNotFound = errors.New("no stored credentials")

type Store interface {
	Save(ctx context.Context, username string, tokens token.Set) error
	Load(ctx context.Context, username string) (token.Set, error)
	Delete(ctx context.Context, username string) error
}
