// Package worker wires the job queue consumer to the browser pool and turns
// report render jobs into base64-encoded PDF artifacts.
package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerdesk/engine/internal/browser"
	"github.com/ledgerdesk/engine/internal/queue"
	"github.com/ledgerdesk/engine/internal/report"
	"github.com/ledgerdesk/engine/internal/worker/metrics"
)

// JobNameReportPDF is the job kind handled by this worker
const JobNameReportPDF = "report-pdf"

const depthsUpdateInterval = 15 * time.Second

// Worker owns one consumer and one browser pool. Each job attempt borrows a
// browser handle, builds the report document and prints it; errors surface
// unchanged so the queue's retry bookkeeping stays authoritative.
type Worker struct {
	workerID string
	queue    *queue.Queue
	consumer *queue.Consumer
	pool     *browser.Pool
	metrics  *metrics.MetricsCollector
	logger   *zap.Logger
}

// New creates a worker and registers its job handlers. Consumer concurrency
// matches the pool size so every consume loop can hold a browser handle.
func New(workerID string, q *queue.Queue, pool *browser.Pool, collector *metrics.MetricsCollector, logger *zap.Logger) *Worker {
	w := &Worker{
		workerID: workerID,
		queue:    q,
		consumer: queue.NewConsumer(q, pool.PoolSize(), logger),
		pool:     pool,
		metrics:  collector,
		logger:   logger,
	}

	w.consumer.Register(JobNameReportPDF, w.handleReportPDF)
	return w
}

// Run starts the consumer and the observability loops, blocking until the
// context is cancelled and in-flight attempts have finished.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Report worker starting",
		zap.String("worker_id", w.workerID),
		zap.String("queue", w.queue.Name()),
		zap.Int("pool_size", w.pool.PoolSize()))

	go w.queue.LogFailureEvents(ctx)
	go w.observeLoop(ctx)

	return w.consumer.Run(ctx)
}

// handleReportPDF is the handler for one render attempt
func (w *Worker) handleReportPDF(ctx context.Context, job *queue.Job) ([]byte, error) {
	started := time.Now()

	var doc report.Document
	if err := json.Unmarshal(job.Payload, &doc); err != nil {
		w.metrics.RecordPayloadError()
		w.metrics.RecordJobError()
		return nil, fmt.Errorf("undecodable report payload: %w", err)
	}

	htmlDoc, err := report.Build(&doc)
	if err != nil {
		w.metrics.RecordRenderError()
		w.metrics.RecordJobError()
		return nil, err
	}

	var pdf []byte
	err = w.pool.WithHandle(ctx, job.ID, func(ctx context.Context, instance *browser.Instance) error {
		var printErr error
		pdf, printErr = printToPDF(ctx, instance, htmlDoc)
		return printErr
	})
	if err != nil {
		if ctx.Err() != nil {
			w.metrics.RecordJobTimeout()
		} else {
			w.metrics.RecordPDFError()
			w.metrics.RecordJobError()
		}
		return nil, err
	}

	artifact := make([]byte, base64.StdEncoding.EncodedLen(len(pdf)))
	base64.StdEncoding.Encode(artifact, pdf)

	w.metrics.RecordJobSuccess()
	w.metrics.RecordJobDuration(time.Since(started).Seconds())

	w.logger.Info("Report rendered",
		zap.String("worker_id", w.workerID),
		zap.String("job_id", job.ID),
		zap.String("title", doc.Title),
		zap.Int("pdf_bytes", len(pdf)),
		zap.Duration("duration", time.Since(started)))

	return artifact, nil
}

// observeLoop keeps the pool and queue depth gauges current
func (w *Worker) observeLoop(ctx context.Context) {
	ticker := time.NewTicker(depthsUpdateInterval)
	defer ticker.Stop()

	for {
		w.metrics.UpdateBrowserPoolSize(w.pool.PoolSize())
		w.metrics.UpdateBrowserAvailable(w.pool.Available())

		if depths, err := w.queue.Depths(ctx); err == nil {
			w.metrics.UpdateQueueDepths(depths.Waiting, depths.Active, depths.Failed)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
