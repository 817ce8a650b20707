package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalWorkerYAML = `
worker_id: worker-1
redis:
  addr: localhost:6379
queue:
  name: reports
`

func TestGetConfigPath(t *testing.T) {
	path := writeConfigFile(t, minimalWorkerYAML)

	abs, err := GetConfigPath(path)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))

	_, err = GetConfigPath(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file does not exist")
}

func TestLoadWorkerConfig_AppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, minimalWorkerYAML)

	cfg, err := LoadWorkerConfig(path, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "worker-1", cfg.WorkerID)
	assert.Equal(t, "reports", cfg.Queue.Name)
	assert.Equal(t, 2, cfg.Queue.AttemptsAllowed)
	assert.Equal(t, 60*time.Second, cfg.Queue.ProcessTimeout.ToDuration())
	assert.Equal(t, 30*time.Second, cfg.Queue.ResponseTimeout.ToDuration())
	assert.Equal(t, 10*time.Minute, cfg.Queue.ResultRetention.ToDuration())
	assert.Equal(t, 50, cfg.Queue.FailedKeep)
	assert.Equal(t, "none", cfg.Queue.ResultCompression)
	assert.Equal(t, "auto", cfg.Browser.PoolSize)
	assert.Equal(t, 100, cfg.Browser.RestartAfterCount)
	assert.True(t, cfg.Log.Console.Enabled)
}

func TestLoadWorkerConfig_ExplicitValuesKept(t *testing.T) {
	path := writeConfigFile(t, `
worker_id: worker-2
redis:
  addr: localhost:6379
  db: 3
queue:
  name: reports
  attempts_allowed: 5
  process_timeout: 2m
  result_compression: lz4
browser:
  pool_size: "4"
  restart_after_count: 20
`)

	cfg, err := LoadWorkerConfig(path, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 5, cfg.Queue.AttemptsAllowed)
	assert.Equal(t, 2*time.Minute, cfg.Queue.ProcessTimeout.ToDuration())
	assert.Equal(t, "lz4", cfg.Queue.ResultCompression)
	assert.Equal(t, "4", cfg.Browser.PoolSize)
	assert.Equal(t, 20, cfg.Browser.RestartAfterCount)
}

func TestLoadWorkerConfig_RejectsUnknownFields(t *testing.T) {
	path := writeConfigFile(t, minimalWorkerYAML+`
chrome_path: /usr/bin/chromium
`)

	_, err := LoadWorkerConfig(path, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadWorkerConfig_EnvOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("REDIS_PASSWORD", "s3cret")

	path := writeConfigFile(t, minimalWorkerYAML)

	cfg, err := LoadWorkerConfig(path, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
}

func TestLoadWorkerConfig_ValidationFailure(t *testing.T) {
	path := writeConfigFile(t, `
worker_id: worker-1
redis:
  addr: localhost:6379
queue:
  name: ""
`)

	_, err := LoadWorkerConfig(path, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestLoadWorkerConfig_MissingFile(t *testing.T) {
	_, err := LoadWorkerConfig(filepath.Join(t.TempDir(), "absent.yaml"), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadCoordinatorConfig(t *testing.T) {
	path := writeConfigFile(t, `
redis:
  addr: localhost:6379
schedule:
  cron: "*/5 * * * *"
  timezone: Europe/Berlin
lease:
  ttl: 2m
`)

	cfg, err := LoadCoordinatorConfig(path, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "*/5 * * * *", cfg.Schedule.Cron)
	assert.Equal(t, "Europe/Berlin", cfg.Schedule.Timezone)
	assert.Equal(t, 2*time.Minute, cfg.Lease.TTL.ToDuration())
	assert.Equal(t, 5*time.Second, cfg.Lease.Grace.ToDuration())
}

func TestLoadCoordinatorConfig_ValidationFailure(t *testing.T) {
	path := writeConfigFile(t, `
redis:
  addr: localhost:6379
schedule:
  cron: "*/5 * * * *"
`)

	_, err := LoadCoordinatorConfig(path, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lease.ttl must be positive")
}
