package lockout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestMemoryStore(at time.Time) (*MemoryStore, *time.Time) {
	clock := at
	store := NewMemoryStore()
	store.now = func() time.Time { return clock }
	return store, &clock
}

func TestMemoryStore_UnknownIdentifierNeverLocked(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	locked, err := store.IsLocked(context.Background(), "nobody")
	require.NoError(t, err)
	require.False(t, locked)
}

func TestMemoryStore_LocksAtThreshold(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestMemoryStore(time.Now())

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

	// A failure past the threshold keeps the lock and refreshes the stamp.
	require.NoError(t, store.RecordFailure(ctx, "alice"))
	locked, err = store.IsLocked(ctx, "alice")
	require.NoError(t, err)
	require.True(t, locked)
}

func TestMemoryStore_SuccessResetsCounter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestMemoryStore(time.Now())

	for i := 0; i < Threshold; i++ {
		require.NoError(t, store.RecordFailure(ctx, "alice"))
	}
	require.NoError(t, store.RecordSuccess(ctx, "alice"))

	locked, err := store.IsLocked(ctx, "alice")
	require.NoError(t, err)
	require.False(t, locked)
}

func TestMemoryStore_SuccessWithoutStateIsNoop(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	require.NoError(t, store.RecordSuccess(context.Background(), "ghost"))
	require.Empty(t, store.states)
}

func TestMemoryStore_LockExpiresLazily(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newTestMemoryStore(time.Now())

	for i := 0; i < Threshold; i++ {
		require.NoError(t, store.RecordFailure(ctx, "alice"))
	}

	*clock = clock.Add(Window - time.Second)
	locked, err := store.IsLocked(ctx, "alice")
	require.NoError(t, err)
	require.True(t, locked)

	*clock = clock.Add(2 * time.Second)
	locked, err = store.IsLocked(ctx, "alice")
	require.NoError(t, err)
	require.False(t, locked)

	// The stale observation zeroed the counter, so a single new failure
	// does not re-lock.
	require.NoError(t, store.RecordFailure(ctx, "alice"))
	locked, err = store.IsLocked(ctx, "alice")
	require.NoError(t, err)
	require.False(t, locked)
}

func TestMemoryStore_FailureSlidesWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newTestMemoryStore(time.Now())

	for i := 0; i < Threshold; i++ {
		require.NoError(t, store.RecordFailure(ctx, "alice"))
	}

	*clock = clock.Add(Window - time.Minute)
	require.NoError(t, store.RecordFailure(ctx, "alice"))

	// Would have expired relative to the fifth failure, but the sixth
	// refreshed the stamp.
	*clock = clock.Add(2 * time.Minute)
	locked, err := store.IsLocked(ctx, "alice")
	require.NoError(t, err)
	require.True(t, locked)
}

func TestMemoryStore_UnlockClearsLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestMemoryStore(time.Now())

	for i := 0; i < Threshold; i++ {
		require.NoError(t, store.RecordFailure(ctx, "alice"))
	}
	require.NoError(t, store.Unlock(ctx, "alice"))

	locked, err := store.IsLocked(ctx, "alice")
	require.NoError(t, err)
	require.False(t, locked)
}

func TestMemoryStore_UnlockNeverCreatesState(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	require.NoError(t, store.Unlock(context.Background(), "ghost"))
	require.Empty(t, store.states)
}

func TestMemoryStore_ConcurrentFailuresLoseNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < Threshold; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, store.RecordFailure(ctx, "alice"))
		}()
	}
	wg.Wait()

	store.mu.Lock()
	failures := store.states["alice"].failures
	store.mu.Unlock()
	require.Equal(t, Threshold, failures)

	locked, err := store.IsLocked(ctx, "alice")
	require.NoError(t, err)
	require.True(t, locked)
}

func TestMemoryStore_IdentifiersIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestMemoryStore(time.Now())

	for i := 0; i < Threshold; i++ {
		require.NoError(t, store.RecordFailure(ctx, "alice"))
	}

	locked, err := store.IsLocked(ctx, "bob")
	require.NoError(t, err)
	require.False(t, locked)
}

func TestMemoryStore_DeleteOlderThan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newTestMemoryStore(time.Now())

	require.NoError(t, store.RecordFailure(ctx, "old"))
	*clock = clock.Add(48 * time.Hour)
	require.NoError(t, store.RecordFailure(ctx, "fresh"))

	deleted, err := store.DeleteOlderThan(ctx, clock.Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	store.mu.Lock()
	_, oldExists := store.states["old"]
	_, freshExists := store.states["fresh"]
	store.mu.Unlock()
	require.False(t, oldExists)
	require.True(t, freshExists)
}
