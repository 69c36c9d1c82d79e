// Package credstoresql stores token sets in Postgres.
package credstoresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvauth/signin-manager/internal/credstore"
	"github.com/corvauth/signin-manager/internal/token"
)

type Store struct {
	db *pgxpool.Pool
}

var _ = credstore.Store(&Store{})

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Save(ctx context.Context, username string, tokens token.Set) error {
	var expiry *time.Time
	if tokens.HasExpiry() {
		expiry = &tokens.Expiry
	}

	if _, err := s.db.Exec(ctx, `INSERT INTO token_sets (username, id_token, access_token, refresh_token, expiry, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (username) DO UPDATE
SET id_token = EXCLUDED.id_token,
	access_token = EXCLUDED.access_token,
	refresh_token = EXCLUDED.refresh_token,
	expiry = EXCLUDED.expiry,
	updated_at = now();`,
		username, tokens.IDToken, tokens.AccessToken, tokens.RefreshToken, expiry,
	); err != nil {
		return fmt.Errorf("upserting into token_sets: %w", err)
	}

	return nil
}

func (s *Store) Load(ctx context.Context, username string) (token.Set, error) {
	var tokens token.Set
	var expiry *time.Time

	if err := s.db.QueryRow(ctx, `SELECT id_token, access_token, refresh_token, expiry
FROM token_sets
WHERE username = $1;`,
		username,
	).Scan(&tokens.IDToken, &tokens.AccessToken, &tokens.RefreshToken, &expiry); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return token.Set{}, credstore.ErrNotFound
		}

		return token.Set{}, fmt.Errorf("selecting from token_sets: %w", err)
	}

	if expiry != nil {
		tokens.Expiry = *expiry
	}

	return tokens, nil
}

func (s *Store) Delete(ctx context.Context, username string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM token_sets WHERE username = $1;`, username)
	if err != nil {
		return fmt.Errorf("deleting from token_sets: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return credstore.ErrNotFound
	}

	return nil
}
