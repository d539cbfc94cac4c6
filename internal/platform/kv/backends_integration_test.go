//go:build integration

package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/pkg/platform/tx"
	"gatekeeper/pkg/testutil"
	"gatekeeper/pkg/testutil/containers"
)

func TestPostgresConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	require.NoError(t, pg.TruncateTables(context.Background(), "kv_entries"))

	runConformance(t, NewPostgres(pg.DB, 5*time.Second), "conf/")
}

func TestPostgresNestedUnitJoinsOuter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	store := NewPostgres(pg.DB, 5*time.Second)
	ctx := context.Background()

	err := store.RunInTx(ctx, func(ctx context.Context) error {
		if err := store.Put(ctx, "nested/outer", []byte("1")); err != nil {
			return err
		}
		return store.RunInTx(ctx, func(ctx context.Context) error {
			v, err := store.Get(ctx, "nested/outer")
			require.NoError(t, err)
			assert.Equal(t, []byte("1"), v, "inner unit sees the outer unit's writes")
			return assert.AnError
		})
	})
	require.ErrorIs(t, err, assert.AnError)

	ok, err := Has(ctx, store, "nested/outer")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresDeferredHookFailureAbortsUnit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	store := NewPostgres(pg.DB, 5*time.Second)
	ctx := context.Background()

	err := store.RunInTx(ctx, func(ctx context.Context) error {
		if err := store.Put(ctx, "hooked/pg", []byte("x")); err != nil {
			return err
		}
		tx.Defer(ctx, func(context.Context) error { return assert.AnError })
		return nil
	})
	require.ErrorIs(t, err, assert.AnError)

	ok, err := Has(ctx, store, "hooked/pg")
	require.NoError(t, err)
	assert.False(t, ok, "hooks join the SQL transaction")
}

func TestRedisConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.FlushAll(context.Background()))

	runConformance(t, NewRedis(rc.Client, "gatekeeper-test:", 5*time.Second), "conf/")
}

func TestRedisPrefixIsolatesStores(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()

	a := NewRedis(rc.Client, "engine-a:", 5*time.Second)
	b := NewRedis(rc.Client, "engine-b:", 5*time.Second)
	require.NoError(t, a.Put(ctx, "shared", []byte("a")))

	ok, err := Has(ctx, b, "shared")
	require.NoError(t, err)
	assert.False(t, ok)

	raw, err := rc.Client.Get(ctx, "engine-a:shared").Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), raw)
}

func TestRedisInstancesSharingKeysLoseNoUpdates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	engines := []*Redis{
		NewRedis(rc.Client, "shared:", 10*time.Second),
		NewRedis(rc.Client, "shared:", 10*time.Second),
	}
	const workers = 60
	result := testutil.RunConcurrent(workers, func(i int) error {
		return increment(engines[i%len(engines)], "counter")(i)
	})
	assert.Zero(t, result.Errors)
	assert.Positive(t, result.Successes)

	var n int
	found, err := GetJSON(ctx, engines[0], "counter", &n)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int(result.Successes), n, "every acknowledged increment is stored")
}

func TestRedisStaleReadIsRerun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	a := NewRedis(rc.Client, "stale:", 5*time.Second)
	b := NewRedis(rc.Client, "stale:", 5*time.Second)
	require.NoError(t, PutJSON(ctx, a, "n", 1))

	runs := 0
	err := a.RunInTx(ctx, func(ctx context.Context) error {
		runs++
		var n int
		if _, err := GetJSON(ctx, a, "n", &n); err != nil {
			return err
		}
		if runs == 1 {
			require.NoError(t, PutJSON(context.Background(), b, "n", 10))
		}
		return PutJSON(ctx, a, "n", n+1)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, runs)

	var n int
	_, err = GetJSON(ctx, b, "n", &n)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
}
