package metricsserver

// NOTE: Tests involving FastHTTP server shutdown may trigger benign data race warnings
// when run with -race flag. This is a known limitation in FastHTTP's internal shutdown
// logic (github.com/valyala/fasthttp) where connection cleanup races with worker goroutines.

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type mockMetricsHandler struct {
	called bool
}

func (m *mockMetricsHandler) ServeHTTP(ctx *fasthttp.RequestCtx) {
	m.called = true
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString("# HELP test_metric A test metric\n# TYPE test_metric counter\ntest_metric 42\n")
}

func TestStartMetricsServer_Disabled(t *testing.T) {
	handler := &mockMetricsHandler{}

	server, err := StartMetricsServer(false, ":19081", "/metrics", handler, zap.NewNop())

	require.NoError(t, err)
	assert.Nil(t, server, "Should return nil when metrics disabled")
	assert.False(t, handler.called)
}

func TestMetricsHandler_CorrectPath(t *testing.T) {
	mockHandler := &mockMetricsHandler{}
	handler := createMetricsHandler("/metrics", mockHandler)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/metrics")

	handler(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.True(t, mockHandler.called)
}

func TestMetricsHandler_WrongPath(t *testing.T) {
	mockHandler := &mockMetricsHandler{}
	handler := createMetricsHandler("/metrics", mockHandler)

	testCases := []struct {
		name string
		path string
	}{
		{"root path", "/"},
		{"health path", "/health"},
		{"wrong metrics path", "/metric"},
		{"nested path", "/metrics/detailed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockHandler.called = false
			ctx := &fasthttp.RequestCtx{}
			ctx.Request.SetRequestURI(tc.path)

			handler(ctx)

			assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
			assert.Equal(t, "Not Found", string(ctx.Response.Body()))
			assert.False(t, mockHandler.called)
		})
	}
}

func TestMetricsHandler_CustomPath(t *testing.T) {
	mockHandler := &mockMetricsHandler{}
	handler := createMetricsHandler("/internal/metrics", mockHandler)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/internal/metrics")
	handler(ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.True(t, mockHandler.called)

	mockHandler.called = false
	ctx2 := &fasthttp.RequestCtx{}
	ctx2.Request.SetRequestURI("/metrics")
	handler(ctx2)
	assert.Equal(t, fasthttp.StatusNotFound, ctx2.Response.StatusCode())
	assert.False(t, mockHandler.called)
}

func TestStartMetricsServer_ServesAndShutsDown(t *testing.T) {
	handler := &mockMetricsHandler{}

	server, err := StartMetricsServer(true, ":19082", "/metrics", handler, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, server)

	time.Sleep(200 * time.Millisecond)

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://localhost:19082/metrics")
	req.Header.SetMethod("GET")
	// Avoid keep-alive to prevent shutdown/read data race in fasthttp internals
	req.Header.SetConnectionClose()

	client := &fasthttp.Client{
		MaxIdleConnDuration: 0,
	}
	err = client.Do(req, resp)

	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusOK, resp.StatusCode())
	assert.True(t, handler.called)
	assert.Contains(t, string(resp.Body()), "test_metric 42")

	// Allow server workers to finish processing before shutdown
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.ShutdownWithContext(ctx))

	time.Sleep(100 * time.Millisecond)

	resp2 := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp2)
	req.SetRequestURI("http://localhost:19082/metrics")

	err = client.Do(req, resp2)
	assert.Error(t, err, "Should fail to connect after shutdown")
}

func TestMetricsServerConfiguration(t *testing.T) {
	handler := &mockMetricsHandler{}

	server, err := StartMetricsServer(true, ":19083", "/metrics", handler, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, server)

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.ShutdownWithContext(ctx)
	}()

	assert.Equal(t, "LedgerDesk-Metrics", server.Name)
	assert.Equal(t, 10*time.Second, server.ReadTimeout)
	assert.Equal(t, 10*time.Second, server.WriteTimeout)
	assert.Equal(t, 1*1024, server.MaxRequestBodySize)
	assert.False(t, server.DisableKeepalive)
	assert.True(t, server.TCPKeepalive)
	assert.Equal(t, 30*time.Second, server.TCPKeepalivePeriod)
	assert.Equal(t, 100, server.MaxConnsPerIP)
	assert.Equal(t, 1000, server.MaxRequestsPerConn)
	assert.Equal(t, 100, server.Concurrency)
}
