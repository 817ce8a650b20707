package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	"github.com/ledgerdesk/engine/internal/common/configtypes"
	"github.com/ledgerdesk/engine/internal/common/yamlutil"
)

// GetConfigPath resolves a config path to absolute form and verifies it exists
func GetConfigPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("config file does not exist: %s", absPath)
	}

	return absPath, nil
}

// LoadWorkerConfig loads report-worker configuration from YAML file.
// Broker credentials can be overridden through REDIS_ADDR / REDIS_PASSWORD / REDIS_DB.
func LoadWorkerConfig(path string, logger *zap.Logger) (*configtypes.WorkerConfig, error) {
	logger.Info("Loading worker configuration", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config configtypes.WorkerConfig
	if err := yamlutil.UnmarshalStrict(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyWorkerDefaults(&config)

	if err := applyRedisEnvOverrides(&config.Redis); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Info("Worker configuration loaded successfully",
		zap.String("worker_id", config.WorkerID),
		zap.String("queue", config.Queue.Name),
		zap.String("redis_addr", config.Redis.Addr))

	return &config, nil
}

// LoadCoordinatorConfig loads coordinator configuration from YAML file
func LoadCoordinatorConfig(path string, logger *zap.Logger) (*configtypes.CoordinatorConfig, error) {
	logger.Info("Loading coordinator configuration", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config configtypes.CoordinatorConfig
	if err := yamlutil.UnmarshalStrict(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyCoordinatorDefaults(&config)

	if err := applyRedisEnvOverrides(&config.Redis); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Info("Coordinator configuration loaded successfully",
		zap.String("cron", config.Schedule.Cron),
		zap.Duration("lease_ttl", time.Duration(config.Lease.TTL)),
		zap.String("redis_addr", config.Redis.Addr))

	return &config, nil
}

// applyRedisEnvOverrides layers environment values over the YAML redis block
func applyRedisEnvOverrides(cfg *configtypes.RedisConfig) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("failed to parse redis environment overrides: %w", err)
	}
	return nil
}

// applyWorkerDefaults applies default values to worker configuration
func applyWorkerDefaults(config *configtypes.WorkerConfig) {
	applyLogDefaults(&config.Log)

	if config.Queue.AttemptsAllowed == 0 {
		config.Queue.AttemptsAllowed = 2
	}
	if config.Queue.ProcessTimeout == 0 {
		config.Queue.ProcessTimeout = configtypes.Duration(60 * time.Second)
	}
	if config.Queue.ResponseTimeout == 0 {
		config.Queue.ResponseTimeout = configtypes.Duration(30 * time.Second)
	}
	if config.Queue.ResultRetention == 0 {
		config.Queue.ResultRetention = configtypes.Duration(10 * time.Minute)
	}
	if config.Queue.FailedKeep == 0 {
		config.Queue.FailedKeep = 50
	}
	if config.Queue.ResultCompression == "" {
		config.Queue.ResultCompression = "none"
	}

	if config.Browser.PoolSize == "" {
		config.Browser.PoolSize = "auto"
	}
	if config.Browser.ShutdownTimeout == 0 {
		config.Browser.ShutdownTimeout = configtypes.Duration(30 * time.Second)
	}
	if config.Browser.RestartAfterCount == 0 {
		config.Browser.RestartAfterCount = 100
	}
	if config.Browser.RestartAfterTime == 0 {
		config.Browser.RestartAfterTime = configtypes.Duration(60 * time.Minute)
	}
}

// applyCoordinatorDefaults applies default values to coordinator configuration
func applyCoordinatorDefaults(config *configtypes.CoordinatorConfig) {
	applyLogDefaults(&config.Log)

	if config.Lease.Grace == 0 {
		config.Lease.Grace = configtypes.Duration(5 * time.Second)
	}
}

// applyLogDefaults enables console output when both outputs are disabled
func applyLogDefaults(logCfg *configtypes.LogConfig) {
	if !logCfg.Console.Enabled && !logCfg.File.Enabled {
		logCfg.Console.Enabled = true
	}

	if logCfg.Console.Format == "" {
		logCfg.Console.Format = configtypes.LogFormatConsole
	}

	if logCfg.File.Format == "" {
		logCfg.File.Format = configtypes.LogFormatText
	}
}
