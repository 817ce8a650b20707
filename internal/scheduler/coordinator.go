// Package scheduler runs recurring maintenance tasks on a cron cadence,
// guarded by the lease store so that any number of identical replicas share
// each task without duplicating work.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ledgerdesk/engine/internal/common/runid"
	"github.com/ledgerdesk/engine/internal/lease"
)

// Task is one recurring unit of work. A task body may run more than once
// around a lease TTL boundary, so it must be idempotent.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// ttlWarnFraction is the share of the lease TTL a task run may consume before
// the coordinator warns that the lease is at risk of expiring mid-run
const ttlWarnFraction = 0.8

// Coordinator schedules lease-guarded tasks on every replica. Each cycle it
// tries to acquire the task's lease; losing the race is the normal case on
// all but one replica.
type Coordinator struct {
	store    *lease.Store
	owner    string
	cronSpec string
	location *time.Location
	ttl      time.Duration
	metrics  *Metrics
	logger   *zap.Logger

	mu    sync.Mutex
	tasks []Task
	cron  *cron.Cron

	runWg sync.WaitGroup
}

// New creates a coordinator. The owner string identifies this replica in
// lease records; the cron spec and IANA timezone set the cadence.
func New(store *lease.Store, owner, cronSpec, timezone string, ttl time.Duration, collector *Metrics, logger *zap.Logger) (*Coordinator, error) {
	if owner == "" {
		return nil, fmt.Errorf("owner is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lease ttl must be positive")
	}

	location := time.UTC
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
		location = loc
	}

	return &Coordinator{
		store:    store,
		owner:    owner,
		cronSpec: cronSpec,
		location: location,
		ttl:      ttl,
		metrics:  collector,
		logger:   logger,
	}, nil
}

// AddTask registers a task. Must be called before Start.
func (c *Coordinator) AddTask(task Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, task)
}

// Start begins the cron schedule. Returns an error for an invalid spec.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cron != nil {
		return fmt.Errorf("coordinator already started")
	}

	runner := cron.New(cron.WithLocation(c.location))
	if _, err := runner.AddFunc(c.cronSpec, c.runCycle); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", c.cronSpec, err)
	}

	c.cron = runner
	runner.Start()

	c.logger.Info("Coordinator started",
		zap.String("owner", c.owner),
		zap.String("cron", c.cronSpec),
		zap.String("timezone", c.location.String()),
		zap.Duration("lease_ttl", c.ttl),
		zap.Int("tasks", len(c.tasks)))
	return nil
}

// Stop halts the schedule and waits for running task bodies up to the
// context deadline
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	runner := c.cron
	c.cron = nil
	c.mu.Unlock()

	if runner == nil {
		return nil
	}

	cronCtx := runner.Stop()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		c.runWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Coordinator stopped", zap.String("owner", c.owner))
		return nil
	case <-ctx.Done():
		c.logger.Warn("Coordinator stop timed out with tasks still running",
			zap.String("owner", c.owner))
		return ctx.Err()
	}
}

// runCycle runs one scheduled cycle over all registered tasks
func (c *Coordinator) runCycle() {
	c.mu.Lock()
	tasks := make([]Task, len(c.tasks))
	copy(tasks, c.tasks)
	c.mu.Unlock()

	for _, task := range tasks {
		c.runWg.Add(1)
		func() {
			defer c.runWg.Done()
			c.runTask(context.Background(), task)
		}()
	}
}

// runTask attempts one lease-guarded execution of a task
func (c *Coordinator) runTask(ctx context.Context, task Task) {
	runID := runid.New(task.Name())
	log := c.logger.With(
		zap.String("run_id", runID),
		zap.String("task", task.Name()),
		zap.String("owner", c.owner))

	held, err := c.store.Acquire(ctx, task.Name(), c.ttl, c.owner)
	if err != nil {
		// Broker trouble: skip this cycle, the next one will retry
		log.Warn("Lease acquisition failed, skipping cycle", zap.Error(err))
		c.metrics.RecordAcquisition("error")
		return
	}
	if held == nil {
		log.Debug("Lease held elsewhere, skipping cycle")
		c.metrics.RecordAcquisition("contended")
		return
	}
	c.metrics.RecordAcquisition("won")

	defer func() {
		released, err := c.store.Release(ctx, task.Name(), c.owner)
		if err != nil {
			log.Warn("Lease release failed", zap.Error(err))
		} else if !released {
			// The lease expired mid-run and someone else took it over
			log.Warn("Lease no longer owned at release")
		}
	}()

	log.Info("Task starting")
	started := time.Now()
	taskErr := task.Run(ctx)
	elapsed := time.Since(started)

	c.metrics.RecordTaskDuration(task.Name(), elapsed.Seconds())

	if elapsed > time.Duration(float64(c.ttl)*ttlWarnFraction) {
		log.Warn("Task duration approaching lease TTL",
			zap.Duration("duration", elapsed),
			zap.Duration("lease_ttl", c.ttl))
	}

	if taskErr != nil {
		log.Error("Task failed", zap.Duration("duration", elapsed), zap.Error(taskErr))
		c.metrics.RecordTaskRun(task.Name(), "error")
		return
	}

	log.Info("Task completed", zap.Duration("duration", elapsed))
	c.metrics.RecordTaskRun(task.Name(), "success")
}
