package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureMetrics records calls for assertions.
type captureMetrics struct {
	mu    sync.Mutex
	http  []string
	calls int
}

func (c *captureMetrics) RecordRun(context.Context, string, string, time.Duration, int) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}
func (c *captureMetrics) RecordToolCall(context.Context, string, string, time.Duration) {}
func (c *captureMetrics) RecordDecision(context.Context, string, time.Duration)         {}
func (c *captureMetrics) RecordModelCall(context.Context, string, time.Duration, int, int, error) {
}

func (c *captureMetrics) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	c.mu.Lock()
	c.http = append(c.http, method+" "+route)
	c.mu.Unlock()
}

func TestManager_DisabledIsNoop(t *testing.T) {
	m := NewManager(Config{})
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Shutdown(context.Background())

	// With everything disabled, recording must be safe and side-effect
	// free.
	m.Metrics().RecordRun(context.Background(), "helper", "completed", time.Second, 100)
	m.Metrics().RecordDecision(context.Background(), "approved", 3*time.Second)

	_, ok := m.Metrics().(noopMetrics)
	assert.True(t, ok, "disabled metrics should be the no-op recorder")
}

func TestGlobal_NeverNil(t *testing.T) {
	SetGlobal(nil)
	require.NotNil(t, Global())

	// Installing a recorder makes it visible process-wide.
	captured := &captureMetrics{}
	SetGlobal(captured)
	defer SetGlobal(nil)

	Global().RecordRun(context.Background(), "helper", "completed", time.Second, 0)
	captured.mu.Lock()
	defer captured.mu.Unlock()
	assert.Equal(t, 1, captured.calls)
}

func TestManager_TracingInitAndShutdown(t *testing.T) {
	m := NewManager(Config{Tracing: TracingConfig{Enabled: true, ServiceName: "test"}})
	require.NoError(t, m.Initialize(context.Background()))

	tracer := m.Tracer("test")
	_, span := tracer.Start(context.Background(), SpanRun)
	span.End()

	require.NoError(t, m.Shutdown(context.Background()))
}

func TestHTTPMiddleware_RecordsRouteAndStatus(t *testing.T) {
	captured := &captureMetrics{}

	handler := HTTPMiddleware(captured, nil, func(*http.Request) string {
		return "/v1/runs/{id}"
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/abc123", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.Len(t, captured.http, 1)
	assert.Equal(t, "GET /v1/runs/{id}", captured.http[0], "metric label should use the route pattern, not the raw path")
}

func TestHTTPMiddleware_DefaultsToPath(t *testing.T) {
	captured := &captureMetrics{}

	handler := HTTPMiddleware(captured, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, captured.http, 1)
	assert.Equal(t, "GET /healthz", captured.http[0])
}

func TestStatusWriter_DoubleWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	w.WriteHeader(http.StatusAccepted)
	w.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusAccepted, w.status, "second WriteHeader should be ignored")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
