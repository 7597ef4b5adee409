// Package storetest provides a conformance suite run against every
// storage.Store implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tekriderz/sessionkit/storage"
)

// Run exercises the storage.Store contract against the given store.
func Run(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutAndGet", func(t *testing.T) {
		entry, err := storage.NewEntry("greeting", "hello", 0)
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, "ns1", "greeting", entry))

		got, err := store.Get(ctx, "ns1", "greeting")
		require.NoError(t, err)
		var v string
		require.NoError(t, got.Decode(&v))
		require.Equal(t, "hello", v)
		require.False(t, got.WrittenAt.IsZero())
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(ctx, "ns1", "no-such-key")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("GetMissingNamespace", func(t *testing.T) {
		_, err := store.Get(ctx, "never-written", "k")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Overwrite", func(t *testing.T) {
		e1, err := storage.NewEntry("k", 1, 0)
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, "ns1", "k", e1))
		e2, err := storage.NewEntry("k", 2, 0)
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, "ns1", "k", e2))

		got, err := store.Get(ctx, "ns1", "k")
		require.NoError(t, err)
		var v int
		require.NoError(t, got.Decode(&v))
		require.Equal(t, 2, v)
	})

	t.Run("Delete", func(t *testing.T) {
		e, err := storage.NewEntry("gone", "x", 0)
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, "ns1", "gone", e))
		require.NoError(t, store.Delete(ctx, "ns1", "gone"))
		_, err = store.Get(ctx, "ns1", "gone")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "ns1", "never-existed"))
	})

	t.Run("LazyEviction", func(t *testing.T) {
		e, err := storage.NewEntry("secret", "tok", time.Nanosecond)
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, "ns1", "secret", e))
		time.Sleep(5 * time.Millisecond)

		_, err = store.Get(ctx, "ns1", "secret")
		require.ErrorIs(t, err, storage.ErrNotFound)

		// The expired entry must have been deleted, not merely hidden.
		keys, err := store.List(ctx, "ns1")
		require.NoError(t, err)
		require.NotContains(t, keys, "secret")
	})

	t.Run("ClearNamespace", func(t *testing.T) {
		for _, k := range []string{"a", "b"} {
			e, err := storage.NewEntry(k, k, 0)
			require.NoError(t, err)
			require.NoError(t, store.Put(ctx, "ns2", k, e))
		}
		other, err := storage.NewEntry("keep", "kept", 0)
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, "ns3", "keep", other))

		require.NoError(t, store.Clear(ctx, "ns2"))
		keys, err := store.List(ctx, "ns2")
		require.NoError(t, err)
		require.Empty(t, keys)

		// Namespaces never cross-invalidate.
		_, err = store.Get(ctx, "ns3", "keep")
		require.NoError(t, err)
	})

	t.Run("ClearMissingNamespace", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx, "never-written"))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := store.Get(cancelled, "ns1", "k")
		require.True(t, errors.Is(err, context.Canceled))
	})
}
