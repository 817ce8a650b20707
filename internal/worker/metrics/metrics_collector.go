package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// MetricsCollector centralizes all metrics recording for the report worker
type MetricsCollector struct {
	prometheus *PrometheusMetrics
	logger     *zap.Logger
}

// NewMetricsCollector creates a new MetricsCollector instance
func NewMetricsCollector(namespace string, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetrics(namespace, logger),
		logger:     logger,
	}
}

// NewMetricsCollectorWithRegistry creates a MetricsCollector bound to a custom
// registry, used in tests to avoid the global default registerer
func NewMetricsCollectorWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetricsWithRegistry(namespace, registerer, logger),
		logger:     logger,
	}
}

// UpdateBrowserPoolSize updates the browser pool size metric
func (mc *MetricsCollector) UpdateBrowserPoolSize(size int) {
	mc.prometheus.UpdateBrowserPoolSize(float64(size))
}

// UpdateBrowserAvailable updates the free slot metric
func (mc *MetricsCollector) UpdateBrowserAvailable(available int) {
	mc.prometheus.UpdateBrowserAvailable(float64(available))
}

// RecordJobSuccess records a successfully rendered job
func (mc *MetricsCollector) RecordJobSuccess() {
	mc.prometheus.RecordJob("success")
}

// RecordJobError records a failed job attempt
func (mc *MetricsCollector) RecordJobError() {
	mc.prometheus.RecordJob("error")
}

// RecordJobTimeout records a job attempt cancelled by its process timeout
func (mc *MetricsCollector) RecordJobTimeout() {
	mc.prometheus.RecordJob("timeout")
}

// RecordJobDuration records job processing duration in seconds
func (mc *MetricsCollector) RecordJobDuration(seconds float64) {
	mc.prometheus.RecordJobDuration(seconds)
}

// UpdateQueueDepths updates the waiting/active/failed depth gauges
func (mc *MetricsCollector) UpdateQueueDepths(waiting, active, failed int64) {
	mc.prometheus.UpdateQueueDepth("waiting", float64(waiting))
	mc.prometheus.UpdateQueueDepth("active", float64(active))
	mc.prometheus.UpdateQueueDepth("failed", float64(failed))
}

// RecordPayloadError records an undecodable job payload
func (mc *MetricsCollector) RecordPayloadError() {
	mc.prometheus.RecordError("payload")
}

// RecordRenderError records a document build failure
func (mc *MetricsCollector) RecordRenderError() {
	mc.prometheus.RecordError("render")
}

// RecordPDFError records a PDF print failure
func (mc *MetricsCollector) RecordPDFError() {
	mc.prometheus.RecordError("pdf")
}

// RecordInternalError records an internal error
func (mc *MetricsCollector) RecordInternalError() {
	mc.prometheus.RecordError("internal")
}

// ServeHTTP serves Prometheus metrics via HTTP
func (mc *MetricsCollector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	mc.prometheus.ServeHTTP(ctx)
}
