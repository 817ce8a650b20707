package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPool(t *testing.T, size string) *Pool {
	config := DefaultConfig()
	config.PoolSize = size
	config.ShutdownTimeout = time.Second

	pool, err := NewPool(config, zap.NewNop())
	require.NoError(t, err)
	return pool
}

func TestNewPool_LazySlots(t *testing.T) {
	pool := newTestPool(t, "3")

	// No browser is launched at construction, all slots are free
	stats := pool.GetStats()
	assert.Equal(t, 3, stats.TotalSlots)
	assert.Equal(t, 0, stats.LiveInstances)
	assert.Equal(t, 3, stats.Available)
	assert.Equal(t, 0, stats.ActiveJobs)

	require.NoError(t, pool.Shutdown())
}

func TestNewPool_RejectsInvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.PoolSize = "0"

	_, err := NewPool(config, zap.NewNop())
	require.Error(t, err)
}

func TestPool_AcquireAfterShutdown(t *testing.T) {
	pool := newTestPool(t, "2")
	require.NoError(t, pool.Shutdown())

	_, err := pool.acquire(context.Background(), "job-1")
	assert.ErrorIs(t, err, ErrPoolShutdown)
}

func TestPool_WithHandleAfterShutdown(t *testing.T) {
	pool := newTestPool(t, "2")
	require.NoError(t, pool.Shutdown())

	called := false
	err := pool.WithHandle(context.Background(), "job-1", func(ctx context.Context, instance *Instance) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrPoolShutdown)
	assert.False(t, called)
}

// newFakePool swaps the launcher for one that creates instances with no
// browser process behind them, so checkout semantics can run in isolation
func newFakePool(t *testing.T, size string) (*Pool, *atomic.Int32) {
	pool := newTestPool(t, size)

	var launches atomic.Int32
	pool.launch = func(id int, logger *zap.Logger) (*Instance, error) {
		launches.Add(1)
		now := time.Now().UTC()
		return &Instance{
			ID:           id,
			createdAt:    now,
			logger:       logger,
			status:       int32(StatusIdle),
			lastUsedNano: now.UnixNano(),
			healthCheck:  func() error { return nil },
		}, nil
	}
	return pool, &launches
}

func TestPool_BoundRespected(t *testing.T) {
	pool, launches := newFakePool(t, "2")
	defer func() { require.NoError(t, pool.Shutdown()) }()

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := pool.WithHandle(context.Background(), fmt.Sprintf("job-%d", n), func(ctx context.Context, instance *Instance) error {
				in := current.Add(1)
				for {
					p := peak.Load()
					if in <= p || peak.CompareAndSwap(p, in) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				current.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2), "never more borrowers than slots")
	assert.Equal(t, int32(2), launches.Load(), "lazy creation stops at the bound")

	stats := pool.GetStats()
	assert.Equal(t, int64(6), stats.TotalJobs)
	assert.Equal(t, 2, stats.LiveInstances)
	assert.Equal(t, 2, stats.Available)
	assert.Equal(t, 0, stats.ActiveJobs)
}

func TestPool_ErrorDestroysAndRelaunches(t *testing.T) {
	pool, launches := newFakePool(t, "1")
	defer func() { require.NoError(t, pool.Shutdown()) }()

	err := pool.WithHandle(context.Background(), "job-1", func(ctx context.Context, instance *Instance) error {
		return errors.New("render wedged")
	})
	require.Error(t, err)

	stats := pool.GetStats()
	assert.Equal(t, 0, stats.LiveInstances, "errored instance is not returned")
	assert.Equal(t, int64(1), stats.TotalDestroys)
	assert.Equal(t, 1, stats.Available, "slot token came back for relaunch")

	require.NoError(t, pool.WithHandle(context.Background(), "job-2", func(ctx context.Context, instance *Instance) error {
		return nil
	}))
	assert.Equal(t, int32(2), launches.Load(), "empty slot relaunched on next demand")
}

func TestInstance_ShouldRestart(t *testing.T) {
	config := DefaultConfig()
	config.RestartAfterCount = 5
	config.RestartAfterTime = time.Hour

	instance := &Instance{
		ID:        0,
		createdAt: time.Now().UTC(),
		logger:    zap.NewNop(),
	}

	assert.False(t, instance.ShouldRestart(config))

	for i := 0; i < 5; i++ {
		instance.IncrementJobs()
	}
	assert.True(t, instance.ShouldRestart(config), "job count policy")

	aged := &Instance{
		ID:        1,
		createdAt: time.Now().UTC().Add(-2 * time.Hour),
		logger:    zap.NewNop(),
	}
	assert.True(t, aged.ShouldRestart(config), "age policy")
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusIdle, "idle"},
		{StatusBusy, "busy"},
		{StatusDead, "dead"},
		{Status(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.String())
		})
	}
}
