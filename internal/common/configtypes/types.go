package configtypes

import (
	"fmt"
	"strconv"
	"time"
)

// Log level constants
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// RedisConfig holds connection parameters for the coordination store
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxAge     int  `yaml:"max_age"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// QueueConfig defines job queue behavior shared by producer and consumer sides
type QueueConfig struct {
	Name              string   `yaml:"name"`               // Queue name (e.g., "report-render")
	AttemptsAllowed   int      `yaml:"attempts_allowed"`   // Default attempts per job (min 1)
	ProcessTimeout    Duration `yaml:"process_timeout"`    // Upper bound a worker may spend on one job
	ResponseTimeout   Duration `yaml:"response_timeout"`   // Default caller wait in AwaitResult
	ResultRetention   Duration `yaml:"result_retention"`   // TTL on terminal job records
	FailedKeep        int      `yaml:"failed_keep"`        // Failed jobs retained for diagnostics
	ResultCompression string   `yaml:"result_compression"` // none, snappy, lz4
}

// BrowserConfig defines the render handle pool
type BrowserConfig struct {
	PoolSize          string   `yaml:"pool_size"` // "auto" or integer string
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	RestartAfterCount int      `yaml:"restart_after_count"`
	RestartAfterTime  Duration `yaml:"restart_after_time"`
}

// WorkerConfig is the root configuration for the report-worker binary
type WorkerConfig struct {
	WorkerID string        `yaml:"worker_id"`
	Redis    RedisConfig   `yaml:"redis"`
	Queue    QueueConfig   `yaml:"queue"`
	Browser  BrowserConfig `yaml:"browser"`
	Log      LogConfig     `yaml:"log"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// CoordinatorConfig is the root configuration for the coordinator binary
type CoordinatorConfig struct {
	Redis    RedisConfig    `yaml:"redis"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Lease    LeaseConfig    `yaml:"lease"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ScheduleConfig defines the recurring task cadence
type ScheduleConfig struct {
	Cron     string `yaml:"cron"`     // cron spec, e.g. "*/5 * * * *"
	Timezone string `yaml:"timezone"` // IANA TZ, e.g. "Europe/Berlin" (empty = local)
}

// LeaseConfig defines lease timing for the coordinator
type LeaseConfig struct {
	TTL   Duration `yaml:"ttl"`   // Must exceed worst-case task duration
	Grace Duration `yaml:"grace"` // Extra key TTL beyond expires_at, GC safety net
}

// Validate validates worker configuration
func (c *WorkerConfig) Validate() error {
	if c == nil {
		return nil
	}

	if c.WorkerID == "" {
		return fmt.Errorf("worker_id must be specified")
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if err := c.Queue.Validate(); err != nil {
		return err
	}
	if err := c.Browser.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate validates coordinator configuration
func (c *CoordinatorConfig) Validate() error {
	if c == nil {
		return nil
	}

	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if c.Schedule.Cron == "" {
		return fmt.Errorf("schedule.cron must be specified")
	}
	if time.Duration(c.Lease.TTL) <= 0 {
		return fmt.Errorf("lease.ttl must be positive, got %v", c.Lease.TTL)
	}
	if time.Duration(c.Lease.Grace) < 0 {
		return fmt.Errorf("lease.grace must be >= 0, got %v", c.Lease.Grace)
	}
	return nil
}

// Validate validates redis configuration
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("redis.addr must be specified")
	}
	if c.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0, got %d", c.DB)
	}
	return nil
}

// Validate validates queue configuration
func (c *QueueConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("queue.name must be specified")
	}
	if c.AttemptsAllowed < 1 {
		return fmt.Errorf("queue.attempts_allowed must be >= 1, got %d", c.AttemptsAllowed)
	}
	if time.Duration(c.ProcessTimeout) <= 0 {
		return fmt.Errorf("queue.process_timeout must be positive, got %v", c.ProcessTimeout)
	}
	if time.Duration(c.ResponseTimeout) <= 0 {
		return fmt.Errorf("queue.response_timeout must be positive, got %v", c.ResponseTimeout)
	}
	if c.FailedKeep < 0 {
		return fmt.Errorf("queue.failed_keep must be >= 0, got %d", c.FailedKeep)
	}
	return nil
}

// Validate validates browser pool configuration
func (c *BrowserConfig) Validate() error {
	if c.PoolSize != "auto" {
		size, err := strconv.Atoi(c.PoolSize)
		if err != nil {
			return fmt.Errorf("browser.pool_size must be 'auto' or valid integer")
		}
		if size <= 0 {
			return fmt.Errorf("browser.pool_size must be positive")
		}
	}
	if c.RestartAfterCount <= 0 {
		return fmt.Errorf("browser.restart_after_count must be positive")
	}
	if time.Duration(c.RestartAfterTime) <= 0 {
		return fmt.Errorf("browser.restart_after_time must be positive")
	}
	if time.Duration(c.ShutdownTimeout) <= 0 {
		return fmt.Errorf("browser.shutdown_timeout must be positive")
	}
	return nil
}
