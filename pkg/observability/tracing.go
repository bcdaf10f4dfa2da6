package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig controls span export. Spans go to stdout, which is meant
// for local debugging of run and tool flows, not production export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Pretty renders spans as indented JSON.
	Pretty bool `yaml:"pretty"`

	// SampleRate is the fraction of traces to keep, 0 to 1. Zero means
	// sample everything.
	SampleRate float64 `yaml:"sample_rate"`

	// ServiceName tags exported spans. Defaults to "reins".
	ServiceName string `yaml:"service_name"`
}

func initTracer(ctx context.Context, cfg TracingConfig) (trace.TracerProvider, func(context.Context) error, error) {
	var opts []stdouttrace.Option
	if cfg.Pretty {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "reins"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(name)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	rate := cfg.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(rate)),
		sdktrace.WithResource(res),
	)
	return tp, tp.Shutdown, nil
}
