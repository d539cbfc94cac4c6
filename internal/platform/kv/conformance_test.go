package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/pkg/platform/sentinel"
	"gatekeeper/pkg/platform/tx"
	"gatekeeper/pkg/testutil"
)

// runConformance checks the behaviour every Store backend must share. Keys
// are prefixed so suites can share a backend.
func runConformance(t *testing.T, store Store, prefix string) {
	ctx := context.Background()
	key := func(s string) string { return prefix + s }

	t.Run("get put delete", func(t *testing.T) {
		_, err := store.Get(ctx, key("missing"))
		require.ErrorIs(t, err, sentinel.ErrNotFound)

		require.NoError(t, store.Put(ctx, key("k"), []byte("v1")))
		got, err := store.Get(ctx, key("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)

		require.NoError(t, store.Delete(ctx, key("k")))
		ok, err := Has(ctx, store, key("k"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("failed unit leaves no trace", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, key("orig"), []byte("orig")))
		err := store.RunInTx(ctx, func(ctx context.Context) error {
			require.NoError(t, store.Put(ctx, key("orig"), []byte("changed")))
			require.NoError(t, store.Put(ctx, key("new"), []byte("new")))
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		v, err := store.Get(ctx, key("orig"))
		require.NoError(t, err)
		assert.Equal(t, []byte("orig"), v)
		ok, err := Has(ctx, store, key("new"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("deferred hooks run only for committed units", func(t *testing.T) {
		var seen []byte
		require.NoError(t, store.RunInTx(ctx, func(ctx context.Context) error {
			require.NoError(t, store.Put(ctx, key("hooked"), []byte("x")))
			require.True(t, tx.Defer(ctx, func(ctx context.Context) error {
				v, err := store.Get(ctx, key("hooked"))
				seen = v
				return err
			}))
			return nil
		}))
		assert.Equal(t, []byte("x"), seen)

		ran := false
		err := store.RunInTx(ctx, func(ctx context.Context) error {
			tx.Defer(ctx, func(context.Context) error { ran = true; return nil })
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)
		assert.False(t, ran)
	})

	t.Run("concurrent units serialize", func(t *testing.T) {
		const workers = 20
		result := testutil.RunConcurrent(workers, func(int) error {
			return store.RunInTx(ctx, func(ctx context.Context) error {
				var n int
				if _, err := GetJSON(ctx, store, key("counter"), &n); err != nil {
					return err
				}
				return PutJSON(ctx, store, key("counter"), n+1)
			})
		})
		assert.Equal(t, int32(workers), result.Successes)

		var n int
		found, err := GetJSON(ctx, store, key("counter"), &n)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, workers, n)
	})

	t.Run("set index", func(t *testing.T) {
		for _, m := range []string{"b", "a", "b"} {
			_, err := SetAdd(ctx, store, key("idx"), m)
			require.NoError(t, err)
		}
		members, err := SetMembers(ctx, store, key("idx"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, members)
	})
}

func TestMemoryConformance(t *testing.T) {
	runConformance(t, NewMemory(), "conf/")
}
