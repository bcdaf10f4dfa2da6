// Copyright 2026 The Reins Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability wires OpenTelemetry metrics and tracing for the
// runtime.
//
// Metrics are exported through the Prometheus bridge onto the default
// registry, so a /metrics endpoint served by promhttp picks them up.
// Tracing writes spans to stdout for local debugging and is off unless
// enabled. Recording goes through a process-global Metrics recorder that
// defaults to a no-op, so instrumented code never checks for nil.
package observability

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Span names.
const (
	SpanRun         = "reins.run"
	SpanModelCall   = "reins.model.generate"
	SpanToolExecute = "reins.tool.execute"
	SpanHTTPRequest = "reins.http.request"
)

// Config controls which telemetry is active.
type Config struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// Manager owns the telemetry providers for a process.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	metrics  Metrics
	tracer   trace.TracerProvider
	shutdown []func(context.Context) error
}

// NewManager builds a manager from cfg. Nothing starts until Initialize.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:     cfg,
		metrics: noopMetrics{},
		tracer:  tracenoop.NewTracerProvider(),
	}
}

// Initialize starts the configured providers and installs them globally.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.Metrics.Enabled {
		metrics, stop, err := initMetrics(m.cfg.Metrics)
		if err != nil {
			return err
		}
		m.metrics = metrics
		m.shutdown = append(m.shutdown, stop)
	}

	if m.cfg.Tracing.Enabled {
		tp, stop, err := initTracer(ctx, m.cfg.Tracing)
		if err != nil {
			return err
		}
		m.tracer = tp
		m.shutdown = append(m.shutdown, stop)
	}

	SetGlobal(m.metrics)
	otel.SetTracerProvider(m.tracer)
	return nil
}

// Metrics returns the active recorder, a no-op one when disabled.
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// Tracer returns a named tracer from the active provider.
func (m *Manager) Tracer(name string) trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracer.Tracer(name)
}

// Shutdown flushes and stops the providers.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, stop := range m.shutdown {
		if err := stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	m.shutdown = nil
	return errors.Join(errs...)
}

var (
	globalMu      sync.RWMutex
	globalMetrics Metrics = noopMetrics{}
)

// SetGlobal installs the process-wide recorder.
func SetGlobal(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	globalMu.Lock()
	globalMetrics = m
	globalMu.Unlock()
}

// Global returns the process-wide recorder. Never nil.
func Global() Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}
