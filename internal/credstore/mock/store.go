// Package credstoremock provides an in-memory credential store for tests.
package credstoremock

import (
	"context"
	"sync"

	"github.com/corvauth/signin-manager/internal/credstore"
	"github.com/corvauth/signin-manager/internal/token"
)

type StoreOption func(*Store)

type Store struct {
	mu     sync.Mutex
	tokens map[string]token.Set

	saveErr, loadErr, deleteErr error
}

func WithTokens(username string, tokens token.Set) StoreOption {
	return func(s *Store) { s.tokens[username] = tokens }
}

func WithSaveError(err error) StoreOption {
	return func(s *Store) { s.saveErr = err }
}

func WithLoadError(err error) StoreOption {
	return func(s *Store) { s.loadErr = err }
}

func WithDeleteError(err error) StoreOption {
	return func(s *Store) { s.deleteErr = err }
}

var _ = credstore.Store(&Store{})

func NewInMemStore(opts ...StoreOption) *Store {
	s := &Store{tokens: make(map[string]token.Set)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Save(_ context.Context, username string, tokens token.Set) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[username] = tokens
	return nil
}

func (s *Store) Load(_ context.Context, username string) (token.Set, error) {
	if s.loadErr != nil {
		return token.Set{}, s.loadErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tokens, ok := s.tokens[username]; ok {
		return tokens, nil
	}
	return token.Set{}, credstore.ErrNotFound
}

func (s *Store) Delete(_ context.Context, username string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[username]; !ok {
		return credstore.ErrNotFound
	}
	delete(s.tokens, username)
	return nil
}
