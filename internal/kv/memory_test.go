package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSetDelete(t *testing.T) {
	store := NewMemory()
	defer store.Close()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "a", []byte("1")))
	v, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.Delete(ctx, "a"), "deleting a missing key is fine")
}

func TestMemory_ValuesAreCopied(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	in := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", in))
	in[0] = 'x'

	out, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))
}

func TestMemory_Keys(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	for _, k := range []string{"ns/b", "ns/a", "other/c"} {
		require.NoError(t, store.Set(ctx, k, nil))
	}

	keys, err := store.Keys(ctx, "ns/")
	require.NoError(t, err)
	assert.Equal(t, []string{"ns/a", "ns/b"}, keys)
}

func TestMemory_Closed(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.Close())

	ctx := context.Background()
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Set(ctx, "k", nil), ErrStoreClosed)
	assert.ErrorIs(t, store.Delete(ctx, "k"), ErrStoreClosed)
	_, err = store.Keys(ctx, "")
	assert.ErrorIs(t, err, ErrStoreClosed)
}
