package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerdesk/engine/internal/common/config"
	logutil "github.com/ledgerdesk/engine/internal/common/logger"
	"github.com/ledgerdesk/engine/internal/common/metricsserver"
	"github.com/ledgerdesk/engine/internal/common/redis"
	"github.com/ledgerdesk/engine/internal/lease"
	"github.com/ledgerdesk/engine/internal/scheduler"
)

func main() {
	configPath := flag.String("c", "configs/coordinator.yaml",
		"Path to coordinator configuration file")
	flag.Parse()

	initialLogger, err := logutil.NewDefaultLogger()
	if err != nil {
		panic(err)
	}

	initialLogger.Info("Loading configuration", zap.String("path", *configPath))

	absPath, err := config.GetConfigPath(*configPath)
	if err != nil {
		initialLogger.Fatal("Invalid config path", zap.Error(err))
	}

	cfg, err := config.LoadCoordinatorConfig(absPath, initialLogger.Logger)
	if err != nil {
		initialLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	dynamicLogger, err := logutil.NewLogger(cfg.Log)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}
	logger := dynamicLogger.Logger

	// Replica identity for lease ownership
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "coordinator"
	}
	owner := hostname + "-" + time.Now().UTC().Format("150405")

	logger.Info("Coordinator starting",
		zap.String("owner", owner),
		zap.String("cron", cfg.Schedule.Cron),
		zap.String("timezone", cfg.Schedule.Timezone),
		zap.Duration("lease_ttl", time.Duration(cfg.Lease.TTL)))

	redisClient, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	coordinatorMetrics := scheduler.NewMetrics(cfg.Metrics.Namespace, logger)

	metricsServer, err := metricsserver.StartMetricsServer(
		cfg.Metrics.Enabled,
		cfg.Metrics.Listen,
		cfg.Metrics.Path,
		coordinatorMetrics,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to start metrics server", zap.Error(err))
	}

	leaseStore := lease.NewStore(redisClient, time.Duration(cfg.Lease.Grace), logger)

	coordinator, err := scheduler.New(
		leaseStore,
		owner,
		cfg.Schedule.Cron,
		cfg.Schedule.Timezone,
		time.Duration(cfg.Lease.TTL),
		coordinatorMetrics,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to create coordinator", zap.Error(err))
	}

	ticketSource := scheduler.NewRedisTicketSource(redisClient, logger)
	notifier := scheduler.NewRedisNotifier(redisClient)
	coordinator.AddTask(scheduler.NewStaleTicketTask(ticketSource, notifier, logger))

	if err := coordinator.Start(); err != nil {
		logger.Fatal("Failed to start coordinator", zap.Error(err))
	}

	logger.Info("Coordinator ready", zap.String("owner", owner))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	dynamicLogger.EnsureInfoLevelForShutdown()
	logger.Info("Shutting down gracefully...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := coordinator.Stop(stopCtx); err != nil {
		logger.Error("Coordinator stop error", zap.Error(err))
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
		cancel()
	}

	logger.Info("Coordinator stopped")
}
