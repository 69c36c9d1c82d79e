// Package credstorememory keeps token sets in process memory, evicted when
// they expire. The default store for the CLI when nothing durable is
// configured.
package credstorememory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/corvauth/signin-manager/internal/credstore"
	"github.com/corvauth/signin-manager/internal/token"
)

type Store struct {
	cache *gocache.Cache
}

var _ = credstore.Store(&Store{})

func NewStore() *Store {
	return &Store{
		cache: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (s *Store) Save(_ context.Context, username string, tokens token.Set) error {
	ttl := gocache.NoExpiration
	if tokens.HasExpiry() {
		ttl = time.Until(tokens.Expiry)
	}
	s.cache.Set(username, tokens, ttl)
	return nil
}

func (s *Store) Load(_ context.Context, username string) (token.Set, error) {
	value, ok := s.cache.Get(username)
	if !ok {
		return token.Set{}, credstore.ErrNotFound
	}

	//nolint:forcetypeassert
	return value.(token.Set), nil
}

func (s *Store) Delete(_ context.Context, username string) error {
	if _, ok := s.cache.Get(username); !ok {
		return credstore.ErrNotFound
	}
	s.cache.Delete(username)
	return nil
}
