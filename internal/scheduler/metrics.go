package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Metrics collects coordinator-side Prometheus metrics. A nil *Metrics is
// valid and records nothing, which keeps tests quiet.
type Metrics struct {
	acquisitionsTotal *prometheus.CounterVec
	taskRunsTotal     *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// NewMetrics creates coordinator metrics on the default registerer
func NewMetrics(namespace string, logger *zap.Logger) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewMetricsWithRegistry creates coordinator metrics on a custom registry
func NewMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Metrics {
	m := &Metrics{logger: logger}

	m.acquisitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "lease_acquisitions_total",
		Help:      "Lease acquisition attempts by outcome",
	}, []string{"outcome"}) // outcome: won, contended, error

	m.taskRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "task_runs_total",
		Help:      "Completed task runs by task and outcome",
	}, []string{"task", "outcome"}) // outcome: success, error

	m.taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "task_duration_seconds",
		Help:      "Task body execution duration",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	}, []string{"task"})

	registerer.MustRegister(
		m.acquisitionsTotal,
		m.taskRunsTotal,
		m.taskDuration,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	m.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Info("Coordinator Prometheus metrics initialized")
	return m
}

// RecordAcquisition records a lease acquisition attempt outcome
func (m *Metrics) RecordAcquisition(outcome string) {
	if m == nil {
		return
	}
	m.acquisitionsTotal.WithLabelValues(outcome).Inc()
}

// RecordTaskRun records a finished task run outcome
func (m *Metrics) RecordTaskRun(task, outcome string) {
	if m == nil {
		return
	}
	m.taskRunsTotal.WithLabelValues(task, outcome).Inc()
}

// RecordTaskDuration records a task body duration in seconds
func (m *Metrics) RecordTaskDuration(task string, seconds float64) {
	if m == nil {
		return
	}
	m.taskDuration.WithLabelValues(task).Observe(seconds)
}

// ServeHTTP serves Prometheus metrics via fasthttp
func (m *Metrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	m.httpHandler(ctx)
}
