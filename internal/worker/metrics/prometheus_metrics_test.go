package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

func TestPrometheusMetrics_Recording(t *testing.T) {
	logger := zap.NewNop()
	registry := prometheus.NewRegistry()
	pm := NewPrometheusMetricsWithRegistry("ledgerdesk", registry, logger)

	pm.UpdateBrowserPoolSize(4)
	pm.UpdateBrowserAvailable(3)

	pm.RecordJob("success")
	pm.RecordJob("success")
	pm.RecordJob("error")
	pm.RecordJobDuration(1.5)

	pm.UpdateQueueDepth("waiting", 7)
	pm.UpdateQueueDepth("active", 2)
	pm.UpdateQueueDepth("failed", 1)

	pm.RecordError("pdf")

	families, err := registry.Gather()
	require.NoError(t, err)

	byName := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			key := family.GetName()
			for _, label := range metric.GetLabel() {
				key += "/" + label.GetValue()
			}
			switch {
			case metric.GetGauge() != nil:
				byName[key] = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				byName[key] = metric.GetCounter().GetValue()
			}
		}
	}

	assert.Equal(t, float64(4), byName["ledgerdesk_worker_browser_pool_size"])
	assert.Equal(t, float64(3), byName["ledgerdesk_worker_browser_available"])
	assert.Equal(t, float64(2), byName["ledgerdesk_worker_jobs_total/success"])
	assert.Equal(t, float64(1), byName["ledgerdesk_worker_jobs_total/error"])
	assert.Equal(t, float64(7), byName["ledgerdesk_worker_queue_depth/waiting"])
	assert.Equal(t, float64(1), byName["ledgerdesk_worker_errors_total/pdf"])
	assert.InDelta(t, 2.0/3.0, byName["ledgerdesk_worker_job_success_ratio"], 0.001)
}

func TestPrometheusMetrics_HTTPEndpoint(t *testing.T) {
	logger := zap.NewNop()
	registry := prometheus.NewRegistry()
	pm := NewPrometheusMetricsWithRegistry("ledgerdesk", registry, logger)

	pm.RecordJob("success")
	pm.UpdateBrowserPoolSize(2)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/metrics")
	ctx.Request.Header.SetMethod("GET")

	pm.ServeHTTP(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Header.Peek("Content-Type")), "text/plain")

	body := string(ctx.Response.Body())
	assert.Contains(t, body, "ledgerdesk_worker_jobs_total")
	assert.Contains(t, body, "ledgerdesk_worker_browser_pool_size")
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "# TYPE")
}
