package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Pool manages a bounded set of browser instances with a FIFO checkout queue.
// Slots are created lazily: a slot holds no process until the first checkout
// claims it, and a destroyed instance leaves its slot empty until the next
// checkout relaunches it.
type Pool struct {
	config    *Config
	logger    *zap.Logger
	instances []*Instance  // nil entry = empty slot, launched on demand
	slots     chan int     // FIFO queue of available slot IDs
	mu        sync.RWMutex // Protects instances slice
	launch    launchFunc   // Creates the instance backing a slot

	activeJobs    atomic.Int32
	totalJobs     atomic.Int64
	totalRestarts atomic.Int64
	totalDestroys atomic.Int64

	createdAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	poolSize  int
}

// launchFunc creates the browser instance backing a slot. Overridable so the
// pool's checkout semantics can be exercised without a real browser.
type launchFunc func(id int, logger *zap.Logger) (*Instance, error)

// Stats represents a snapshot of pool state
type Stats struct {
	TotalSlots    int
	LiveInstances int
	ActiveJobs    int
	Available     int
	TotalJobs     int64
	TotalRestarts int64
	TotalDestroys int64
	Uptime        time.Duration
}

// NewPool creates a browser pool with the specified configuration. No browser
// process is launched until the first checkout.
func NewPool(config *Config, logger *zap.Logger) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	poolSize := config.CalculatePoolSize()
	logger.Info("Initializing browser pool",
		zap.Int("pool_size", poolSize))

	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		config:    config,
		logger:    logger,
		instances: make([]*Instance, poolSize),
		slots:     make(chan int, poolSize),
		launch:    NewInstance,
		createdAt: time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
		poolSize:  poolSize,
	}

	for i := 0; i < poolSize; i++ {
		pool.slots <- i
	}

	return pool, nil
}

// acquire checks out a browser instance, blocking FIFO until a slot frees up,
// the caller's context expires or the pool shuts down. The slot's process is
// launched or restarted here if needed.
func (p *Pool) acquire(ctx context.Context, jobID string) (*Instance, error) {
	select {
	case <-p.ctx.Done():
		return nil, ErrPoolShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	case slotID := <-p.slots:
		// Re-check shutdown that may have raced the slot receive
		select {
		case <-p.ctx.Done():
			p.returnSlot(slotID)
			return nil, ErrPoolShutdown
		default:
		}

		instance, err := p.readySlot(slotID, jobID)
		if err != nil {
			p.returnSlot(slotID)
			return nil, err
		}

		instance.SetStatus(StatusBusy)
		instance.currentJobID = jobID
		p.activeJobs.Add(1)

		p.logger.Debug("Browser instance acquired",
			zap.String("job_id", jobID),
			zap.Int("instance_id", slotID),
			zap.Int32("active_jobs", p.activeJobs.Load()),
			zap.Int("pool_size", p.poolSize))

		return instance, nil
	}
}

// readySlot returns a live instance for the slot, launching or restarting the
// process as the restart policies and liveness check demand
func (p *Pool) readySlot(slotID int, jobID string) (*Instance, error) {
	p.mu.RLock()
	instance := p.instances[slotID]
	p.mu.RUnlock()

	if instance == nil {
		created, err := p.launch(slotID, p.logger)
		if err != nil {
			p.logger.Error("Failed to launch browser for slot",
				zap.String("job_id", jobID),
				zap.Int("instance_id", slotID),
				zap.Error(err))
			return nil, err
		}
		p.mu.Lock()
		p.instances[slotID] = created
		p.mu.Unlock()
		return created, nil
	}

	if !instance.IsAlive() {
		p.logger.Warn("Browser instance is dead, restarting",
			zap.String("job_id", jobID),
			zap.Int("instance_id", slotID),
			zap.Int32("jobs_done", instance.JobsDone()))

		if err := instance.Restart(); err != nil {
			p.logger.Error("Failed to restart dead instance",
				zap.String("job_id", jobID),
				zap.Int("instance_id", slotID),
				zap.Error(err))
			return nil, fmt.Errorf("%w: instance %d", ErrInstanceDead, slotID)
		}
		p.totalRestarts.Add(1)
		return instance, nil
	}

	if instance.ShouldRestart(p.config) {
		p.logger.Info("Browser instance needs restart based on policy",
			zap.String("job_id", jobID),
			zap.Int("instance_id", slotID),
			zap.Int32("jobs_done", instance.JobsDone()),
			zap.Duration("age", instance.Age()))

		if err := instance.Restart(); err != nil {
			p.logger.Error("Failed to restart instance",
				zap.String("job_id", jobID),
				zap.Int("instance_id", slotID),
				zap.Error(err))
			// Keep the old process despite restart failure
		} else {
			p.totalRestarts.Add(1)
		}
	}

	return instance, nil
}

// release returns a healthy instance back to the pool
func (p *Pool) release(instance *Instance) {
	jobID := instance.currentJobID
	instance.SetStatus(StatusIdle)
	instance.IncrementJobs()
	p.totalJobs.Add(1)

	// Clear before returning the slot to avoid racing the next checkout
	instance.currentJobID = ""
	p.activeJobs.Add(-1)
	p.returnSlot(instance.ID)

	p.logger.Debug("Browser instance released",
		zap.String("job_id", jobID),
		zap.Int("instance_id", instance.ID),
		zap.Int32("jobs_done", instance.JobsDone()),
		zap.Int32("active_jobs", p.activeJobs.Load()))
}

// destroy terminates an instance whose job errored instead of returning it.
// The slot stays empty and the next checkout launches a fresh process, so a
// wedged browser never serves two jobs.
func (p *Pool) destroy(instance *Instance) {
	jobID := instance.currentJobID
	instance.currentJobID = ""

	if err := instance.Terminate(); err != nil {
		p.logger.Warn("Error terminating destroyed instance",
			zap.String("job_id", jobID),
			zap.Int("instance_id", instance.ID),
			zap.Error(err))
	}

	p.mu.Lock()
	p.instances[instance.ID] = nil
	p.mu.Unlock()

	p.totalDestroys.Add(1)
	p.activeJobs.Add(-1)
	p.returnSlot(instance.ID)

	p.logger.Info("Browser instance destroyed after failed job",
		zap.String("job_id", jobID),
		zap.Int("instance_id", instance.ID))
}

// WithHandle runs fn with a checked-out instance. It is the only checkout
// path: a nil error from fn releases the instance back to the pool, any
// error destroys it.
func (p *Pool) WithHandle(ctx context.Context, jobID string, fn func(ctx context.Context, instance *Instance) error) error {
	instance, err := p.acquire(ctx, jobID)
	if err != nil {
		return err
	}

	if err := fn(ctx, instance); err != nil {
		p.destroy(instance)
		return err
	}

	p.release(instance)
	return nil
}

// returnSlot puts a slot ID back without panicking during shutdown
func (p *Pool) returnSlot(slotID int) {
	select {
	case p.slots <- slotID:
	case <-p.ctx.Done():
	default:
		// Queue full - should never happen, indicates a leak
		p.logger.Error("Slot queue full when returning slot",
			zap.Int("instance_id", slotID),
			zap.Int("queue_len", len(p.slots)))
	}
}

// GetStats returns current pool statistics
func (p *Pool) GetStats() Stats {
	p.mu.RLock()
	live := 0
	for _, instance := range p.instances {
		if instance != nil && instance.GetStatus() != StatusDead {
			live++
		}
	}
	total := len(p.instances)
	p.mu.RUnlock()

	return Stats{
		TotalSlots:    total,
		LiveInstances: live,
		ActiveJobs:    int(p.activeJobs.Load()),
		Available:     len(p.slots),
		TotalJobs:     p.totalJobs.Load(),
		TotalRestarts: p.totalRestarts.Load(),
		TotalDestroys: p.totalDestroys.Load(),
		Uptime:        time.Since(p.createdAt),
	}
}

// Shutdown gracefully shuts down all instances with the configured timeout
func (p *Pool) Shutdown() error {
	return p.ShutdownWithTimeout(p.config.ShutdownTimeout)
}

// ShutdownWithTimeout drains active jobs up to the timeout, then terminates
// every live instance. New checkouts fail immediately once initiated.
func (p *Pool) ShutdownWithTimeout(timeout time.Duration) error {
	p.logger.Info("Initiating browser pool shutdown",
		zap.Duration("timeout", timeout),
		zap.Int32("active_jobs", p.activeJobs.Load()))

	p.cancel()

	if p.waitForActiveJobs(timeout) {
		p.logger.Info("All active jobs completed gracefully")
	} else {
		p.logger.Warn("Shutdown timeout exceeded, forcing termination",
			zap.Int32("stuck_jobs", p.activeJobs.Load()))
	}

	p.mu.Lock()
	var errs []error
	for i, instance := range p.instances {
		if instance == nil {
			continue
		}
		if err := instance.Terminate(); err != nil {
			p.logger.Error("Error terminating instance",
				zap.Int("instance_id", i),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	p.mu.Unlock()

	stats := p.GetStats()
	p.logger.Info("Browser pool shut down",
		zap.Int64("total_jobs", stats.TotalJobs),
		zap.Int64("total_restarts", stats.TotalRestarts),
		zap.Int64("total_destroys", stats.TotalDestroys),
		zap.Duration("uptime", stats.Uptime))

	if len(errs) > 0 {
		return fmt.Errorf("encountered %d errors during shutdown", len(errs))
	}
	return nil
}

// waitForActiveJobs polls until all active jobs finish or the timeout passes
func (p *Pool) waitForActiveJobs(timeout time.Duration) bool {
	deadline := time.Now().UTC().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.activeJobs.Load() == 0 {
			return true
		}

		<-ticker.C
		if time.Now().UTC().After(deadline) {
			return false
		}
	}
}

// PoolSize returns the total number of slots in the pool
func (p *Pool) PoolSize() int {
	return p.poolSize
}

// Available returns the number of free slots
func (p *Pool) Available() int {
	return len(p.slots)
}
