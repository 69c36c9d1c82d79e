package credstorememory

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvauth/signin-manager/internal/credstore"
	"github.com/corvauth/signin-manager/internal/token"
)

func TestStore(t *testing.T) {
	ctx := context.Background()

	tokens := token.Set{
		IDToken:      "someIDToken",
		AccessToken:  "someAccessToken",
		RefreshToken: "someRefreshToken",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
	}

	t.Run("save and load round trip", func(t *testing.T) {
		store := NewStore()

		require.NoError(t, store.Save(ctx, "jdoe", tokens))

		loaded, err := store.Load(ctx, "jdoe")
		require.NoError(t, err)

		if diff := cmp.Diff(tokens, loaded); diff != "" {
			t.Errorf("loaded token set mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("load unknown username", func(t *testing.T) {
		store := NewStore()

		_, err := store.Load(ctx, "nobody")
		assert.ErrorIs(t, err, credstore.ErrNotFound)
	})

	t.Run("save overwrites the previous set", func(t *testing.T) {
		store := NewStore()

		require.NoError(t, store.Save(ctx, "jdoe", tokens))

		updated := tokens
		updated.AccessToken = "refreshedAccessToken"
		require.NoError(t, store.Save(ctx, "jdoe", updated))

		loaded, err := store.Load(ctx, "jdoe")
		require.NoError(t, err)
		assert.Equal(t, "refreshedAccessToken", loaded.AccessToken)
	})

	t.Run("expired set is gone", func(t *testing.T) {
		store := NewStore()

		expired := tokens
		expired.Expiry = time.Now().Add(-time.Minute)
		require.NoError(t, store.Save(ctx, "jdoe", expired))

		_, err := store.Load(ctx, "jdoe")
		assert.ErrorIs(t, err, credstore.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		store := NewStore()

		require.NoError(t, store.Save(ctx, "jdoe", tokens))
		require.NoError(t, store.Delete(ctx, "jdoe"))

		_, err := store.Load(ctx, "jdoe")
		assert.ErrorIs(t, err, credstore.ErrNotFound)

		assert.ErrorIs(t, store.Delete(ctx, "jdoe"), credstore.ErrNotFound)
	})

	t.Run("set without expiry never evicts", func(t *testing.T) {
		store := NewStore()

		unbounded := tokens
		unbounded.Expiry = time.Time{}
		require.NoError(t, store.Save(ctx, "jdoe", unbounded))

		loaded, err := store.Load(ctx, "jdoe")
		require.NoError(t, err)
		assert.False(t, loaded.HasExpiry())
	})
}
