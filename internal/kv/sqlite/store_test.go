package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/artpar/cardsync/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetSetDelete(t *testing.T) {
	store, err := NewInMemory()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	// Missing key
	_, err = store.Get(ctx, "daily_inspiration/token")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	// Set and read back
	require.NoError(t, store.Set(ctx, "daily_inspiration/token", []byte("abc")))
	value, err := store.Get(ctx, "daily_inspiration/token")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), value)

	// Replace
	require.NoError(t, store.Set(ctx, "daily_inspiration/token", []byte("def")))
	value, err = store.Get(ctx, "daily_inspiration/token")
	require.NoError(t, err)
	assert.Equal(t, []byte("def"), value)

	// Delete
	require.NoError(t, store.Delete(ctx, "daily_inspiration/token"))
	_, err = store.Get(ctx, "daily_inspiration/token")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStore_EmptyValue(t *testing.T) {
	store, err := NewInMemory()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "empty", nil))

	value, err := store.Get(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestStore_Keys(t *testing.T) {
	store, err := NewInMemory()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for _, key := range []string{"ns/cache/b", "ns/cache/a", "ns/ledger", "ns_other/x", "other/y"} {
		require.NoError(t, store.Set(ctx, key, []byte("v")))
	}

	t.Run("matches prefix only", func(t *testing.T) {
		keys, err := store.Keys(ctx, "ns/")
		require.NoError(t, err)
		assert.Equal(t, []string{"ns/cache/a", "ns/cache/b", "ns/ledger"}, keys)
	})

	t.Run("underscore is literal", func(t *testing.T) {
		keys, err := store.Keys(ctx, "ns_")
		require.NoError(t, err)
		assert.Equal(t, []string{"ns_other/x"}, keys)
	})

	t.Run("empty prefix lists everything", func(t *testing.T) {
		count, err := store.Count(ctx)
		require.NoError(t, err)

		keys, err := store.Keys(ctx, "")
		require.NoError(t, err)
		assert.Len(t, keys, int(count))
	})
}

func TestStore_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "cardsync.db")
	ctx := context.Background()

	store, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "ns/ledger", []byte(`[]`)))
	require.NoError(t, store.Close())

	reopened, err := New(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "ns/ledger")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(value))
}

func TestStore_Closed(t *testing.T) {
	store, err := NewInMemory()
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "second close is a no-op")

	ctx := context.Background()
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, kv.ErrStoreClosed)
	assert.ErrorIs(t, store.Set(ctx, "k", nil), kv.ErrStoreClosed)
	assert.ErrorIs(t, store.Delete(ctx, "k"), kv.ErrStoreClosed)
	_, err = store.Keys(ctx, "")
	assert.ErrorIs(t, err, kv.ErrStoreClosed)
}
