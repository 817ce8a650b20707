package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerdesk/engine/internal/browser"
	"github.com/ledgerdesk/engine/internal/common/config"
	logutil "github.com/ledgerdesk/engine/internal/common/logger"
	"github.com/ledgerdesk/engine/internal/common/metricsserver"
	"github.com/ledgerdesk/engine/internal/common/redis"
	"github.com/ledgerdesk/engine/internal/queue"
	"github.com/ledgerdesk/engine/internal/worker"
	"github.com/ledgerdesk/engine/internal/worker/metrics"
)

func main() {
	configPath := flag.String("c", "configs/report-worker.yaml",
		"Path to report worker configuration file")
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

	cfg, err := config.LoadWorkerConfig(absPath, initialLogger.Logger)
	if err != nil {
		initialLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	dynamicLogger, err := logutil.NewLogger(cfg.Log)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}
	logger := dynamicLogger.Logger

	logger.Info("Report worker starting",
		zap.String("worker_id", cfg.WorkerID),
		zap.String("queue", cfg.Queue.Name),
		zap.String("browser_pool_size", cfg.Browser.PoolSize))

	redisClient, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	metricsCollector := metrics.NewMetricsCollector(cfg.Metrics.Namespace, logger)

	metricsServer, err := metricsserver.StartMetricsServer(
		cfg.Metrics.Enabled,
		cfg.Metrics.Listen,
		cfg.Metrics.Path,
		metricsCollector,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to start metrics server", zap.Error(err))
	}

	poolConfig := &browser.Config{
		PoolSize:          cfg.Browser.PoolSize,
		ShutdownTimeout:   time.Duration(cfg.Browser.ShutdownTimeout),
		RestartAfterCount: cfg.Browser.RestartAfterCount,
		RestartAfterTime:  time.Duration(cfg.Browser.RestartAfterTime),
	}
	pool, err := browser.NewPool(poolConfig, logger)
	if err != nil {
		logger.Fatal("Failed to create browser pool", zap.Error(err))
	}

	jobQueue := queue.New(redisClient, cfg.Queue, logger)

	readyCtx, readyCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := jobQueue.WaitReady(readyCtx); err != nil {
		readyCancel()
		logger.Fatal("Queue broker not ready", zap.Error(err))
	}
	readyCancel()

	w := worker.New(cfg.WorkerID, jobQueue, pool, metricsCollector, logger)

	runCtx, runCancel := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- w.Run(runCtx)
		close(workerDone)
	}()

	logger.Info("Report worker ready",
		zap.String("worker_id", cfg.WorkerID),
		zap.Int("pool_size", pool.PoolSize()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-workerDone:
		if err != nil {
			logger.Error("Worker stopped with error", zap.Error(err))
		}
	}

	dynamicLogger.EnsureInfoLevelForShutdown()
	logger.Info("Shutting down gracefully...")

	// Stop picking up new jobs; in-flight attempts finish their current try
	runCancel()

	select {
	case <-workerDone:
	case <-time.After(time.Duration(cfg.Browser.ShutdownTimeout) + 5*time.Second):
		logger.Warn("Consumer did not stop in time")
	}

	// Independent teardown steps run concurrently; one failure never blocks
	// the others
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pool.Shutdown(); err != nil {
			logger.Error("Browser pool shutdown error", zap.Error(err))
		}
	}()

	if metricsServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.ShutdownWithContext(shutdownCtx); err != nil {
				logger.Error("Metrics server shutdown error", zap.Error(err))
			}
		}()
	}

	wg.Wait()

	if err := redisClient.Close(); err != nil {
		logger.Error("Redis close error", zap.Error(err))
	}

	logger.Info("Report worker stopped")
}
