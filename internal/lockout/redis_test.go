package lockout

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client), mr
}

func TestRedisStore_UnknownIdentifierNeverLocked(t *testing.T) {
	store, _ := newTestRedisStore(t)

	locked, err := store.IsLocked(context.Background(), "nobody")
	require.NoError(t, err)
	require.False(t, locked)
}

func TestRedisStore_LocksAtThreshold(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	for i := 0; i < Threshold-1; i++ {
		require.NoError(t, store.RecordFailure(ctx, "alice"))

		locked, err := store.IsLocked(ctx, "alice")
		require.NoError(t, err)
		require.False(t, locked, "not locked after %d failures", i+1)
	}

	require.NoError(t, store.RecordFailure(ctx, "alice"))
	locked, err := store.IsLocked(ctx, "alice")
	require.NoError(t, err)
	require.True(t, locked)
}

func TestRedisStore_SuccessClearsCounter(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	for i := 0; i < Threshold; i++ {
		require.NoError(t, store.RecordFailure(ctx, "alice"))
	}
	require.NoError(t, store.RecordSuccess(ctx, "alice"))

	locked, err := store.IsLocked(ctx, "alice")
	require.NoError(t, err)
	require.False(t, locked)
}

func TestRedisStore_LockExpiresWithWindow(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	for i := 0; i < Threshold; i++ {
		require.NoError(t, store.RecordFailure(ctx, "alice"))
	}

	mr.FastForward(Window + time.Second)

	locked, err := store.IsLocked(ctx, "alice")
	require.NoError(t, err)
	require.False(t, locked)
}

func TestRedisStore_FailureRefreshesWindow(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	for i := 0; i < Threshold; i++ {
		require.NoError(t, store.RecordFailure(ctx, "alice"))
	}

	mr.FastForward(Window - time.Minute)
	require.NoError(t, store.RecordFailure(ctx, "alice"))

	mr.FastForward(2 * time.Minute)
	locked, err := store.IsLocked(ctx, "alice")
	require.NoError(t, err)
	require.True(t, locked)
}

func TestRedisStore_UnlockClearsLock(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	for i := 0; i < Threshold; i++ {
		require.NoError(t, store.RecordFailure(ctx, "alice"))
	}
	require.NoError(t, store.Unlock(ctx, "alice"))

	locked, err := store.IsLocked(ctx, "alice")
	require.NoError(t, err)
	require.False(t, locked)
	require.False(t, mr.Exists("lockout:alice"))
}

func TestRedisStore_ConcurrentFailuresLoseNothing(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	var wg sync.WaitGroup
	for i := 0; i < Threshold; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, store.RecordFailure(ctx, "alice"))
		}()
	}
	wg.Wait()

	raw, err := mr.Get("lockout:alice")
	require.NoError(t, err)
	count, err := strconv.Atoi(raw)
	require.NoError(t, err)
	require.Equal(t, Threshold, count)
}
