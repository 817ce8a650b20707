package browser

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Status represents the current state of a browser instance
type Status int

const (
	// StatusIdle indicates the instance is ready for a job
	StatusIdle Status = iota
	// StatusBusy indicates the instance is currently processing a job
	StatusBusy
	// StatusDead indicates the instance has crashed or been terminated
	StatusDead
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusBusy:
		return "busy"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Instance represents a single headless browser process
type Instance struct {
	ID              int                // Immutable
	ctx             context.Context    // Immutable after creation
	cancel          context.CancelFunc // Immutable after creation
	allocatorCtx    context.Context    // Immutable after creation
	allocatorCancel context.CancelFunc // Immutable after creation
	createdAt       time.Time
	logger          *zap.Logger
	browserVersion  string

	// Mutable fields - protected by atomic operations
	status       int32 // Status as int32
	jobsDone     int32
	lastUsedNano int64

	currentJobID string // Set on acquire, cleared on release

	// healthCheck overrides the liveness probe; nil means the browser
	// version round trip
	healthCheck func() error
}

// NewInstance launches a new headless browser process
func NewInstance(id int, logger *zap.Logger) (*Instance, error) {
	now := time.Now().UTC()
	instance := &Instance{
		ID:           id,
		createdAt:    now,
		logger:       logger,
		status:       int32(StatusIdle),
		lastUsedNano: now.UnixNano(),
	}

	if err := instance.createBrowser(); err != nil {
		return nil, fmt.Errorf("%w: instance %d: %v", ErrStartFailed, id, err)
	}

	instance.logger.Info("Browser instance created",
		zap.Int("instance_id", id),
		zap.String("version", instance.browserVersion))

	return instance, nil
}

// createBrowser initializes the headless browser process
func (bi *Instance) createBrowser() error {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
	}

	allocatorOpts := append(chromedp.DefaultExecAllocatorOptions[:], opts...)
	bi.allocatorCtx, bi.allocatorCancel = chromedp.NewExecAllocator(context.Background(), allocatorOpts...)

	bi.ctx, bi.cancel = chromedp.NewContext(bi.allocatorCtx)

	// Start the browser process
	if err := chromedp.Run(bi.ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	if err := chromedp.Run(bi.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, product, _, _, _, err := cdpbrowser.GetVersion().Do(ctx)
		if err != nil {
			return err
		}
		bi.browserVersion = product
		return nil
	})); err != nil {
		bi.logger.Warn("Failed to capture browser version",
			zap.Int("instance_id", bi.ID),
			zap.Error(err))
	}

	return nil
}

// IsAlive checks if the browser instance is still responsive
func (bi *Instance) IsAlive() bool {
	if Status(atomic.LoadInt32(&bi.status)) == StatusDead {
		return false
	}

	if bi.healthCheck != nil {
		return bi.healthCheck() == nil
	}

	ctx, cancel := context.WithTimeout(bi.ctx, 5*time.Second)
	defer cancel()

	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, _, err := cdpbrowser.GetVersion().Do(ctx)
		return err
	}))

	return err == nil
}

// Age returns how long the instance has been running
func (bi *Instance) Age() time.Duration {
	return time.Now().UTC().Sub(bi.createdAt)
}

// ShouldRestart determines if the instance needs a restart based on policies
func (bi *Instance) ShouldRestart(config *Config) bool {
	if int(atomic.LoadInt32(&bi.jobsDone)) >= config.RestartAfterCount {
		return true
	}

	if bi.Age() >= config.RestartAfterTime {
		return true
	}

	return false
}

// Restart terminates and recreates the browser process
func (bi *Instance) Restart() error {
	bi.logger.Info("Restarting browser instance",
		zap.String("job_id", bi.currentJobID),
		zap.Int("instance_id", bi.ID),
		zap.Int32("jobs_done", bi.JobsDone()),
		zap.Duration("age", bi.Age()))

	if err := bi.Terminate(); err != nil {
		bi.logger.Warn("Error terminating instance during restart",
			zap.Int("instance_id", bi.ID),
			zap.Error(err))
	}

	now := time.Now().UTC()
	atomic.StoreInt32(&bi.jobsDone, 0)
	bi.createdAt = now
	atomic.StoreInt64(&bi.lastUsedNano, now.UnixNano())
	atomic.StoreInt32(&bi.status, int32(StatusIdle))

	if err := bi.createBrowser(); err != nil {
		atomic.StoreInt32(&bi.status, int32(StatusDead))
		return fmt.Errorf("%w: %v", ErrRestartFailed, err)
	}

	bi.logger.Info("Browser instance restarted",
		zap.Int("instance_id", bi.ID))
	return nil
}

// Terminate cleanly shuts down the browser process
func (bi *Instance) Terminate() error {
	atomic.StoreInt32(&bi.status, int32(StatusDead))

	if bi.cancel != nil {
		bi.cancel()
	}
	if bi.allocatorCancel != nil {
		bi.allocatorCancel()
	}

	return nil
}

// IncrementJobs increments the completed-job counter
func (bi *Instance) IncrementJobs() {
	atomic.AddInt32(&bi.jobsDone, 1)
	atomic.StoreInt64(&bi.lastUsedNano, time.Now().UTC().UnixNano())
}

// NewTab returns a fresh tab context derived from the browser context
func (bi *Instance) NewTab() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(bi.ctx)
}

// GetStatus returns the current status
func (bi *Instance) GetStatus() Status {
	return Status(atomic.LoadInt32(&bi.status))
}

// SetStatus updates the instance status
func (bi *Instance) SetStatus(status Status) {
	atomic.StoreInt32(&bi.status, int32(status))
}

// JobsDone returns the number of completed jobs
func (bi *Instance) JobsDone() int32 {
	return atomic.LoadInt32(&bi.jobsDone)
}

// LastUsed returns the last used time
func (bi *Instance) LastUsed() time.Time {
	return time.Unix(0, atomic.LoadInt64(&bi.lastUsedNano))
}

// Version returns the browser version string
func (bi *Instance) Version() string {
	return bi.browserVersion
}
