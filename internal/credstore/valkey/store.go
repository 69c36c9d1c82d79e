// Package credstorevalkey stores token sets in Valkey, keyed by username
// and expired together with the access token when the expiry is known.
package credstorevalkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/corvauth/signin-manager/internal/credstore"
	"github.com/corvauth/signin-manager/internal/token"
)

var (
	ErrGetTokens    = errors.New("getting token set from store")
	ErrStoreTokens  = errors.New("setting token set into storage")
	ErrDeleteTokens = errors.New("deleting token set from storage")
)

type Store struct {
	valkey valkey.Client
	prefix string
}

var _ = credstore.Store(&Store{})

func NewStore(valkeyClient valkey.Client, prefix string) *Store {
	return &Store{
		valkey: valkeyClient,
		prefix: strings.TrimSuffix(prefix, ":"),
	}
}

func (s *Store) Save(ctx context.Context, username string, tokens token.Set) error {
	bytes, err := json.Marshal(tokens)
	if err != nil {
		return errors.Join(ErrStoreTokens, fmt.Errorf("encoding token set: %w", err))
	}

	var cmd valkey.Completed
	if ttl := time.Until(tokens.Expiry); tokens.HasExpiry() && ttl > 0 {
		cmd = s.valkey.B().Set().Key(s.key(username)).Value(valkey.BinaryString(bytes)).Ex(ttl).Build()
	} else {
		cmd = s.valkey.B().Set().Key(s.key(username)).Value(valkey.BinaryString(bytes)).Build()
	}

	if err := s.valkey.Do(ctx, cmd).Error(); err != nil {
		return errors.Join(ErrStoreTokens, fmt.Errorf("executing set command: %w", err))
	}

	return nil
}

func (s *Store) Load(ctx context.Context, username string) (token.Set, error) {
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(s.key(username)).Build()).AsBytes()
	if err != nil {
		if valkeyErr, ok := valkey.IsValkeyErr(err); ok && valkeyErr.IsNil() {
			return token.Set{}, errors.Join(valkeyErr, credstore.ErrNotFound)
		}

		return token.Set{}, errors.Join(ErrGetTokens, fmt.Errorf("executing get command: %w", err))
	}

	var tokens token.Set
	if err := json.Unmarshal(bytes, &tokens); err != nil {
		return token.Set{}, errors.Join(ErrGetTokens, fmt.Errorf("decoding token set: %w", err))
	}

	return tokens, nil
}

func (s *Store) Delete(ctx context.Context, username string) error {
	if err := s.valkey.Do(ctx, s.valkey.B().Del().Key(s.key(username)).Build()).Error(); err != nil {
		return errors.Join(ErrDeleteTokens, fmt.Errorf("executing del command: %w", err))
	}

	return nil
}

func (s *Store) key(username string) string {
	return fmt.Sprintf("%s:tokenSet:%s", s.prefix, username)
}
