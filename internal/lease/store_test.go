package lease

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgerdesk/engine/internal/common/configtypes"
	"github.com/ledgerdesk/engine/internal/common/redis"
)

func setupTestStore(t *testing.T) *Store {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	logger := zap.NewNop()
	redisClient, err := redis.NewClient(&configtypes.RedisConfig{
		Addr: mr.Addr(),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisClient.Close() })

	return NewStore(redisClient, 5*time.Second, logger)
}

func TestStore_AcquireRelease(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t.Run("first acquire succeeds", func(t *testing.T) {
		l, err := store.Acquire(ctx, "nightly-scan", 10*time.Second, "ownerA")
		require.NoError(t, err)
		require.NotNil(t, l)
		assert.Equal(t, "ownerA", l.Owner)
		assert.True(t, l.ExpiresAt.After(l.AcquiredAt))

		released, err := store.Release(ctx, "nightly-scan", "ownerA")
		require.NoError(t, err)
		assert.True(t, released)
	})

	t.Run("second acquire returns nil while held", func(t *testing.T) {
		l, err := store.Acquire(ctx, "held", 10*time.Second, "ownerA")
		require.NoError(t, err)
		require.NotNil(t, l)

		other, err := store.Acquire(ctx, "held", 10*time.Second, "ownerB")
		require.NoError(t, err)
		assert.Nil(t, other, "contention must not be an error, just a nil lease")
	})

	t.Run("re-acquire after release", func(t *testing.T) {
		_, err := store.Acquire(ctx, "cycle", 10*time.Second, "ownerA")
		require.NoError(t, err)

		released, err := store.Release(ctx, "cycle", "ownerA")
		require.NoError(t, err)
		require.True(t, released)

		l, err := store.Acquire(ctx, "cycle", 10*time.Second, "ownerB")
		require.NoError(t, err)
		require.NotNil(t, l)
		assert.Equal(t, "ownerB", l.Owner)
	})

	t.Run("invalid arguments rejected", func(t *testing.T) {
		_, err := store.Acquire(ctx, "", time.Second, "owner")
		assert.Error(t, err)

		_, err = store.Acquire(ctx, "name", 0, "owner")
		assert.Error(t, err)

		_, err = store.Release(ctx, "name", "")
		assert.Error(t, err)
	})
}

func TestStore_MutualExclusion(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Two replicas race for the same lease near-simultaneously;
	// exactly one must win.
	var wg sync.WaitGroup
	results := make([]*Lease, 2)
	owners := []string{"ownerA", "ownerB"}

	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(idx int) {
			defer wg.Done()
			l, err := store.Acquire(ctx, "nightly-scan", 10*time.Second, owners[idx])
			require.NoError(t, err)
			results[idx] = l
		}(i)
	}
	wg.Wait()

	granted := 0
	for _, l := range results {
		if l != nil {
			granted++
		}
	}
	assert.Equal(t, 1, granted, "exactly one replica must hold the lease")
}

func TestStore_ExpirySelfHealing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	l, err := store.Acquire(ctx, "crashy", 30*time.Millisecond, "ownerA")
	require.NoError(t, err)
	require.NotNil(t, l)

	// Still held before expiry
	blocked, err := store.Acquire(ctx, "crashy", 30*time.Millisecond, "ownerB")
	require.NoError(t, err)
	assert.Nil(t, blocked)

	// ownerA crashed without releasing; after TTL anyone may take over
	time.Sleep(50 * time.Millisecond)

	takeover, err := store.Acquire(ctx, "crashy", 10*time.Second, "ownerB")
	require.NoError(t, err)
	require.NotNil(t, takeover)
	assert.Equal(t, "ownerB", takeover.Owner)
}

func TestStore_ReleaseOwnershipCheck(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Acquire(ctx, "guarded", 10*time.Second, "ownerA")
	require.NoError(t, err)

	// A stale owner must not delete the rightful holder's lease
	released, err := store.Release(ctx, "guarded", "ownerB")
	require.NoError(t, err)
	assert.False(t, released)

	current, err := store.Get(ctx, "guarded")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "ownerA", current.Owner)
}

func TestStore_Get(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	granted, err := store.Acquire(ctx, "present", 10*time.Second, "ownerA")
	require.NoError(t, err)

	got, err := store.Get(ctx, "present")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ownerA", got.Owner)
	assert.WithinDuration(t, granted.ExpiresAt, got.ExpiresAt, time.Millisecond)
	assert.False(t, got.Expired(time.Now().UTC()))
	assert.Greater(t, got.Remaining(time.Now().UTC()), time.Duration(0))
}

func TestStore_Sweep(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Acquire(ctx, "short", 20*time.Millisecond, "ownerA")
	require.NoError(t, err)
	_, err = store.Acquire(ctx, "long", 10*time.Second, "ownerB")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	swept, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	// The unexpired lease survives the sweep
	remaining, err := store.Get(ctx, "long")
	require.NoError(t, err)
	require.NotNil(t, remaining)
	assert.Equal(t, "ownerB", remaining.Owner)
}
