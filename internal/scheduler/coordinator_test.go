package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgerdesk/engine/internal/common/configtypes"
	"github.com/ledgerdesk/engine/internal/common/redis"
	"github.com/ledgerdesk/engine/internal/lease"
)

type countingTask struct {
	name string
	runs atomic.Int32
	err  error
	wait time.Duration
}

func (t *countingTask) Name() string { return t.name }

func (t *countingTask) Run(ctx context.Context) error {
	t.runs.Add(1)
	if t.wait > 0 {
		time.Sleep(t.wait)
	}
	return t.err
}

func setupLeaseStore(t *testing.T) *lease.Store {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	logger := zap.NewNop()
	redisClient, err := redis.NewClient(&configtypes.RedisConfig{Addr: mr.Addr()}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisClient.Close() })

	return lease.NewStore(redisClient, 5*time.Second, logger)
}

func newTestCoordinator(t *testing.T, store *lease.Store, owner string) *Coordinator {
	c, err := New(store, owner, "* * * * *", "UTC", 10*time.Second, nil, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	store := setupLeaseStore(t)

	_, err := New(store, "", "* * * * *", "UTC", time.Second, nil, zap.NewNop())
	require.Error(t, err, "owner required")

	_, err = New(store, "replica-1", "* * * * *", "UTC", 0, nil, zap.NewNop())
	require.Error(t, err, "ttl required")

	_, err = New(store, "replica-1", "* * * * *", "Mars/Olympus", time.Second, nil, zap.NewNop())
	require.Error(t, err, "bad timezone")
}

func TestCoordinator_StartRejectsBadCronSpec(t *testing.T) {
	store := setupLeaseStore(t)
	c, err := New(store, "replica-1", "not a cron spec", "UTC", time.Second, nil, zap.NewNop())
	require.NoError(t, err)

	require.Error(t, c.Start())
}

func TestCoordinator_RunTaskExecutesUnderLease(t *testing.T) {
	store := setupLeaseStore(t)
	c := newTestCoordinator(t, store, "replica-1")

	task := &countingTask{name: "cycle-test"}
	c.runTask(context.Background(), task)

	assert.Equal(t, int32(1), task.runs.Load())

	// The lease is released after the run, so the next cycle can acquire again
	c.runTask(context.Background(), task)
	assert.Equal(t, int32(2), task.runs.Load())
}

func TestCoordinator_OnlyOneReplicaRunsTask(t *testing.T) {
	store := setupLeaseStore(t)
	task := &countingTask{name: "shared-task", wait: 100 * time.Millisecond}

	first := newTestCoordinator(t, store, "replica-1")
	second := newTestCoordinator(t, store, "replica-2")

	var wg sync.WaitGroup
	for _, c := range []*Coordinator{first, second} {
		wg.Add(1)
		go func(c *Coordinator) {
			defer wg.Done()
			c.runTask(context.Background(), task)
		}(c)
	}
	wg.Wait()

	assert.Equal(t, int32(1), task.runs.Load(), "exactly one replica may run the task per cycle")
}

func TestCoordinator_TaskErrorDoesNotBlockNextCycle(t *testing.T) {
	store := setupLeaseStore(t)
	c := newTestCoordinator(t, store, "replica-1")

	failing := &countingTask{name: "flaky", err: errors.New("boom")}
	c.runTask(context.Background(), failing)
	c.runTask(context.Background(), failing)

	assert.Equal(t, int32(2), failing.runs.Load(), "lease released in spite of task error")
}

func TestCoordinator_StartStop(t *testing.T) {
	store := setupLeaseStore(t)
	c := newTestCoordinator(t, store, "replica-1")
	c.AddTask(&countingTask{name: "noop"})

	require.NoError(t, c.Start())
	require.Error(t, c.Start(), "double start")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	// Stopping again is a no-op
	require.NoError(t, c.Stop(ctx))
}
