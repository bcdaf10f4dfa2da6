package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig controls metric export.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Metrics records runtime events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// RecordRun records a finished or suspended run.
	RecordRun(ctx context.Context, agent, state string, duration time.Duration, tokens int)

	// RecordToolCall records one tool execution with its outcome status
	// (executed, failed, skipped).
	RecordToolCall(ctx context.Context, tool, status string, duration time.Duration)

	// RecordDecision records an approval decision and how long the
	// requirement waited for it.
	RecordDecision(ctx context.Context, decision string, wait time.Duration)

	// RecordModelCall records one model request.
	RecordModelCall(ctx context.Context, model string, duration time.Duration, promptTokens, completionTokens int, err error)

	// RecordHTTPRequest records one served HTTP request.
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordRun(context.Context, string, string, time.Duration, int)         {}
func (noopMetrics) RecordToolCall(context.Context, string, string, time.Duration)         {}
func (noopMetrics) RecordDecision(context.Context, string, time.Duration)                 {}
func (noopMetrics) RecordModelCall(context.Context, string, time.Duration, int, int, error) {
}
func (noopMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}

type otelMetrics struct {
	runTotal    metric.Int64Counter
	runDuration metric.Float64Histogram
	runTokens   metric.Int64Counter

	toolTotal    metric.Int64Counter
	toolDuration metric.Float64Histogram

	decisionTotal metric.Int64Counter
	decisionWait  metric.Float64Histogram

	modelDuration     metric.Float64Histogram
	modelPromptTokens metric.Int64Counter
	modelOutputTokens metric.Int64Counter
	modelErrors       metric.Int64Counter

	httpTotal    metric.Int64Counter
	httpDuration metric.Float64Histogram
}

// initMetrics builds the OTel meter with a Prometheus reader. The
// exporter registers on the default Prometheus registry, which is what
// the /metrics endpoint serves.
func initMetrics(_ MetricsConfig) (Metrics, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("reins")

	m := &otelMetrics{}
	for _, inst := range []struct {
		counter *metric.Int64Counter
		name    string
		desc    string
	}{
		{&m.runTotal, "reins_runs_total", "Runs by agent and final state"},
		{&m.runTokens, "reins_run_tokens_total", "Model tokens consumed by runs"},
		{&m.toolTotal, "reins_tool_calls_total", "Tool executions by tool and outcome"},
		{&m.decisionTotal, "reins_approval_decisions_total", "Approval decisions by outcome"},
		{&m.modelPromptTokens, "reins_model_tokens_input_total", "Prompt tokens sent to models"},
		{&m.modelOutputTokens, "reins_model_tokens_output_total", "Completion tokens returned by models"},
		{&m.modelErrors, "reins_model_errors_total", "Failed model requests"},
		{&m.httpTotal, "reins_http_requests_total", "Served HTTP requests"},
	} {
		c, err := meter.Int64Counter(inst.name, metric.WithDescription(inst.desc))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create counter %s: %w", inst.name, err)
		}
		*inst.counter = c
	}

	for _, inst := range []struct {
		hist *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.runDuration, "reins_run_duration_seconds", "Run duration"},
		{&m.toolDuration, "reins_tool_duration_seconds", "Tool execution duration"},
		{&m.decisionWait, "reins_approval_wait_seconds", "Time a requirement waits for a decision"},
		{&m.modelDuration, "reins_model_request_duration_seconds", "Model request duration"},
		{&m.httpDuration, "reins_http_request_duration_seconds", "HTTP request duration"},
	} {
		h, err := meter.Float64Histogram(inst.name, metric.WithDescription(inst.desc), metric.WithUnit("s"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create histogram %s: %w", inst.name, err)
		}
		*inst.hist = h
	}

	return m, provider.Shutdown, nil
}

func (m *otelMetrics) RecordRun(ctx context.Context, agent, state string, duration time.Duration, tokens int) {
	attrs := metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("state", state),
	)
	m.runTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("agent", agent)))
	if tokens > 0 {
		m.runTokens.Add(ctx, int64(tokens), metric.WithAttributes(attribute.String("agent", agent)))
	}
}

func (m *otelMetrics) RecordToolCall(ctx context.Context, tool, status string, duration time.Duration) {
	toolAttr := attribute.String("tool", tool)
	m.toolTotal.Add(ctx, 1, metric.WithAttributes(toolAttr, attribute.String("status", status)))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(toolAttr))
}

func (m *otelMetrics) RecordDecision(ctx context.Context, decision string, wait time.Duration) {
	m.decisionTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
	m.decisionWait.Record(ctx, wait.Seconds())
}

func (m *otelMetrics) RecordModelCall(ctx context.Context, model string, duration time.Duration, promptTokens, completionTokens int, err error) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.modelDuration.Record(ctx, duration.Seconds(), attrs)
	if promptTokens > 0 {
		m.modelPromptTokens.Add(ctx, int64(promptTokens), attrs)
	}
	if completionTokens > 0 {
		m.modelOutputTokens.Add(ctx, int64(completionTokens), attrs)
	}
	if err != nil {
		m.modelErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	ctx := context.Background()
	m.httpTotal.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
}
