// queue-health is a liveness probe for the job queue: it pings the broker,
// reads queue depths and prints them as JSON. Non-zero exit on any failure,
// suitable as a container health check.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerdesk/engine/internal/common/config"
	"github.com/ledgerdesk/engine/internal/common/redis"
	"github.com/ledgerdesk/engine/internal/queue"
)

type healthReport struct {
	Status  string        `json:"status"`
	Queue   string        `json:"queue"`
	Depths  *queue.Depths `json:"depths,omitempty"`
	Error   string        `json:"error,omitempty"`
	Elapsed string        `json:"elapsed"`
}

func main() {
	configPath := flag.String("c", "configs/report-worker.yaml",
		"Path to report worker configuration file")
	timeout := flag.Duration("timeout", 5*time.Second, "Probe timeout")
	flag.Parse()

	logger := zap.NewNop()

	absPath, err := config.GetConfigPath(*configPath)
	if err != nil {
		fail("", err, 0)
	}

	cfg, err := config.LoadWorkerConfig(absPath, logger)
	if err != nil {
		fail("", err, 0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	started := time.Now()

	redisClient, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		fail(cfg.Queue.Name, err, time.Since(started))
	}
	defer redisClient.Close()

	jobQueue := queue.New(redisClient, cfg.Queue, logger)

	if err := redisClient.HealthCheck(ctx); err != nil {
		fail(cfg.Queue.Name, err, time.Since(started))
	}

	depths, err := jobQueue.Depths(ctx)
	if err != nil {
		fail(cfg.Queue.Name, err, time.Since(started))
	}

	report := healthReport{
		Status:  "ok",
		Queue:   cfg.Queue.Name,
		Depths:  depths,
		Elapsed: time.Since(started).String(),
	}
	out, _ := json.Marshal(report)
	fmt.Println(string(out))
}

func fail(queueName string, err error, elapsed time.Duration) {
	report := healthReport{
		Status:  "unhealthy",
		Queue:   queueName,
		Error:   err.Error(),
		Elapsed: elapsed.String(),
	}
	out, _ := json.Marshal(report)
	fmt.Fprintln(os.Stderr, string(out))
	os.Exit(1)
}
