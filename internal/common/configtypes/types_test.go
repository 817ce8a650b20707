package configtypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		WorkerID: "worker-1",
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Queue: QueueConfig{
			Name:              "reports",
			AttemptsAllowed:   2,
			ProcessTimeout:    Duration(30 * time.Second),
			ResponseTimeout:   Duration(60 * time.Second),
			ResultRetention:   Duration(10 * time.Minute),
			FailedKeep:        100,
			ResultCompression: "snappy",
		},
		Browser: BrowserConfig{
			PoolSize:          "auto",
			ShutdownTimeout:   Duration(30 * time.Second),
			RestartAfterCount: 100,
			RestartAfterTime:  Duration(time.Hour),
		},
	}
}

func TestWorkerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WorkerConfig)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(c *WorkerConfig) {},
		},
		{
			name:    "missing worker_id",
			mutate:  func(c *WorkerConfig) { c.WorkerID = "" },
			wantErr: true,
			errMsg:  "worker_id must be specified",
		},
		{
			name:    "missing redis addr",
			mutate:  func(c *WorkerConfig) { c.Redis.Addr = "" },
			wantErr: true,
			errMsg:  "redis.addr must be specified",
		},
		{
			name:    "negative redis db",
			mutate:  func(c *WorkerConfig) { c.Redis.DB = -1 },
			wantErr: true,
			errMsg:  "redis.db must be >= 0",
		},
		{
			name:    "missing queue name",
			mutate:  func(c *WorkerConfig) { c.Queue.Name = "" },
			wantErr: true,
			errMsg:  "queue.name must be specified",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *WorkerConfig) { c.Queue.AttemptsAllowed = 0 },
			wantErr: true,
			errMsg:  "queue.attempts_allowed must be >= 1",
		},
		{
			name:    "zero process timeout",
			mutate:  func(c *WorkerConfig) { c.Queue.ProcessTimeout = 0 },
			wantErr: true,
			errMsg:  "queue.process_timeout must be positive",
		},
		{
			name:    "zero response timeout",
			mutate:  func(c *WorkerConfig) { c.Queue.ResponseTimeout = 0 },
			wantErr: true,
			errMsg:  "queue.response_timeout must be positive",
		},
		{
			name:    "negative failed_keep",
			mutate:  func(c *WorkerConfig) { c.Queue.FailedKeep = -1 },
			wantErr: true,
			errMsg:  "queue.failed_keep must be >= 0",
		},
		{
			name:    "garbage pool size",
			mutate:  func(c *WorkerConfig) { c.Browser.PoolSize = "many" },
			wantErr: true,
			errMsg:  "browser.pool_size must be 'auto' or valid integer",
		},
		{
			name:    "zero pool size",
			mutate:  func(c *WorkerConfig) { c.Browser.PoolSize = "0" },
			wantErr: true,
			errMsg:  "browser.pool_size must be positive",
		},
		{
			name:    "zero restart count",
			mutate:  func(c *WorkerConfig) { c.Browser.RestartAfterCount = 0 },
			wantErr: true,
			errMsg:  "browser.restart_after_count must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validWorkerConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestWorkerConfig_ValidateNil(t *testing.T) {
	var cfg *WorkerConfig
	require.NoError(t, cfg.Validate())
}

func TestCoordinatorConfig_Validate(t *testing.T) {
	valid := func() *CoordinatorConfig {
		return &CoordinatorConfig{
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
			Schedule: ScheduleConfig{
				Cron:     "*/5 * * * *",
				Timezone: "Europe/Berlin",
			},
			Lease: LeaseConfig{
				TTL:   Duration(2 * time.Minute),
				Grace: Duration(30 * time.Second),
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*CoordinatorConfig)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(c *CoordinatorConfig) {},
		},
		{
			name:    "missing cron",
			mutate:  func(c *CoordinatorConfig) { c.Schedule.Cron = "" },
			wantErr: true,
			errMsg:  "schedule.cron must be specified",
		},
		{
			name:    "zero lease ttl",
			mutate:  func(c *CoordinatorConfig) { c.Lease.TTL = 0 },
			wantErr: true,
			errMsg:  "lease.ttl must be positive",
		},
		{
			name:    "negative grace",
			mutate:  func(c *CoordinatorConfig) { c.Lease.Grace = Duration(-time.Second) },
			wantErr: true,
			errMsg:  "lease.grace must be >= 0",
		},
		{
			name:    "missing redis addr",
			mutate:  func(c *CoordinatorConfig) { c.Redis.Addr = "" },
			wantErr: true,
			errMsg:  "redis.addr must be specified",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
