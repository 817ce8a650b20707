package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// PrometheusMetrics provides metrics collection for the report worker
type PrometheusMetrics struct {
	// Browser pool metrics
	browserPoolSize  prometheus.Gauge
	browserAvailable prometheus.Gauge

	// Job metrics
	jobsTotal       *prometheus.CounterVec
	jobDuration     prometheus.Histogram
	jobSuccessRatio prometheus.Gauge

	// Queue metrics
	queueDepth *prometheus.GaugeVec

	// Error metrics
	errorsTotal *prometheus.CounterVec

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// NewPrometheusMetrics creates a new Prometheus-based metrics collector
func NewPrometheusMetrics(namespace string, logger *zap.Logger) *PrometheusMetrics {
	return NewPrometheusMetricsWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewPrometheusMetricsWithRegistry creates a new Prometheus-based metrics collector with custom registry
func NewPrometheusMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *PrometheusMetrics {
	pm := &PrometheusMetrics{
		logger: logger,
	}

	pm.browserPoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "browser_pool_size",
		Help:      "Total number of browser slots in the pool",
	})

	pm.browserAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "browser_available",
		Help:      "Number of free browser slots",
	})

	pm.jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "jobs_total",
		Help:      "Total number of render jobs processed",
	}, []string{"status"}) // status: success, error, timeout

	pm.jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "job_duration_seconds",
		Help:      "Time spent rendering report jobs",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
	})

	pm.jobSuccessRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "job_success_ratio",
		Help:      "Fraction of processed jobs that succeeded",
	})

	pm.queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "queue_depth",
		Help:      "Current queue depth by state list",
	}, []string{"list"}) // list: waiting, active, failed

	pm.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "errors_total",
		Help:      "Total errors by type",
	}, []string{"type"}) // type: payload, render, pdf, internal

	registerer.MustRegister(
		pm.browserPoolSize,
		pm.browserAvailable,
		pm.jobsTotal,
		pm.jobDuration,
		pm.jobSuccessRatio,
		pm.queueDepth,
		pm.errorsTotal,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Info("Report worker Prometheus metrics initialized")
	return pm
}

// UpdateBrowserPoolSize updates the browser pool size metric
func (pm *PrometheusMetrics) UpdateBrowserPoolSize(size float64) {
	pm.browserPoolSize.Set(size)
}

// UpdateBrowserAvailable updates the free slot metric
func (pm *PrometheusMetrics) UpdateBrowserAvailable(available float64) {
	pm.browserAvailable.Set(available)
}

// RecordJob records a job outcome
func (pm *PrometheusMetrics) RecordJob(status string) {
	pm.jobsTotal.WithLabelValues(status).Inc()
	pm.updateJobSuccessRatio()
}

// updateJobSuccessRatio recalculates the success ratio from the counters
func (pm *PrometheusMetrics) updateJobSuccessRatio() {
	success := pm.getCounterValue(pm.jobsTotal.WithLabelValues("success"))
	errors := pm.getCounterValue(pm.jobsTotal.WithLabelValues("error"))
	timeouts := pm.getCounterValue(pm.jobsTotal.WithLabelValues("timeout"))

	total := success + errors + timeouts
	if total > 0 {
		pm.jobSuccessRatio.Set(success / total)
	}
}

// getCounterValue extracts current value from a counter (helper function)
func (pm *PrometheusMetrics) getCounterValue(counter prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		pm.logger.Warn("Failed to read counter value", zap.Error(err))
		return 0
	}
	return metric.GetCounter().GetValue()
}

// RecordJobDuration records job processing duration
func (pm *PrometheusMetrics) RecordJobDuration(seconds float64) {
	pm.jobDuration.Observe(seconds)
}

// UpdateQueueDepth updates one queue depth gauge
func (pm *PrometheusMetrics) UpdateQueueDepth(list string, depth float64) {
	pm.queueDepth.WithLabelValues(list).Set(depth)
}

// RecordError records an error by type
func (pm *PrometheusMetrics) RecordError(errorType string) {
	pm.errorsTotal.WithLabelValues(errorType).Inc()
}

// ServeHTTP serves Prometheus metrics via fasthttp
func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}
