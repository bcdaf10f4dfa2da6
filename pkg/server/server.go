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

// Package server exposes agents over a REST API.
//
// The suspend/resume cycle maps onto three calls: POST /v1/runs starts a
// run and answers 202 with the pending requirements when a gated tool
// suspends it, POST /v1/requirements/{id}/approve (or /reject) records
// the decision, and POST /v1/runs/{id}/continue resumes the run. Because
// decisions and run state live in the shared stores, the deciding client
// does not have to be the one that started the run.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reins-ai/reins/pkg/agent"
	"github.com/reins-ai/reins/pkg/approval"
	"github.com/reins-ai/reins/pkg/auth"
	"github.com/reins-ai/reins/pkg/config"
	"github.com/reins-ai/reins/pkg/observability"
	"github.com/reins-ai/reins/pkg/run"
)

// Server serves the REST API for a set of agents.
type Server struct {
	cfg       *config.ServerConfig
	agents    map[string]*agent.Agent
	runs      run.Service
	approvals approval.Store

	validator auth.TokenValidator
	obs       *observability.Manager

	handler    http.Handler
	httpServer *http.Server
}

// Option configures the server.
type Option func(*Server)

// WithAuthValidator enables JWT authentication. Which middleware variant
// is used follows the auth config: require_auth true rejects
// unauthenticated requests outside the excluded paths, false validates
// tokens when present but lets anonymous requests through.
func WithAuthValidator(validator auth.TokenValidator) Option {
	return func(s *Server) {
		s.validator = validator
	}
}

// WithObservability wires request metrics, tracing, and the /metrics
// endpoint.
func WithObservability(obs *observability.Manager) Option {
	return func(s *Server) {
		s.obs = obs
	}
}

// New builds a server over the given agents and shared stores. The run
// service and approval store must be the same instances the agents were
// built with; requirement decisions are routed back through the owning
// agent's approval service.
func New(cfg *config.ServerConfig, agents map[string]*agent.Agent, runs run.Service, approvals approval.Store, opts ...Option) *Server {
	if cfg.Host == "" || cfg.Port == 0 {
		cfg.SetDefaults()
	}

	s := &Server{
		cfg:       cfg,
		agents:    agents,
		runs:      runs,
		approvals: approvals,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.handler = s.routes()
	return s
}

// routes builds the router with the middleware chain. Order matters:
// observability wraps everything so errors in later middleware still get
// measured, recovery sits inside logging so a panic is logged as a 500,
// and auth runs last so preflight requests pass through CORS first.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	if s.obs != nil {
		r.Use(observability.HTTPMiddleware(s.obs.Metrics(), s.obs.Tracer("reins.server"), chiRoutePattern))
	}
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.cfg.CORS))
	if s.validator != nil {
		if s.cfg.Auth.IsRequireAuth() {
			r.Use(auth.MiddlewareWithExclusions(s.validator, s.cfg.Auth.ExcludedPaths))
			slog.Info("Authentication enabled", "excluded_paths", s.cfg.Auth.ExcludedPaths)
		} else {
			r.Use(auth.OptionalMiddleware(s.validator))
			slog.Info("Authentication optional", "require_auth", false)
		}
	}

	r.Get("/healthz", s.handleHealth)
	if s.metricsEnabled() {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/agents", s.handleListAgents)
		r.Post("/runs", s.handleStartRun)
		r.Route("/runs/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Get("/requirements", s.handleRunRequirements)
			r.Post("/continue", s.handleContinueRun)
		})
		r.Route("/requirements/{id}", func(r chi.Router) {
			r.Post("/approve", s.handleApprove)
			r.Post("/reject", s.handleReject)
		})
	})

	return r
}

func (s *Server) metricsEnabled() bool {
	return s.cfg.Observability != nil && s.cfg.Observability.Metrics.Enabled
}

// Handler returns the configured handler, for tests and for embedding
// the API into a larger mux.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Address returns the listen address.
func (s *Server) Address() string {
	return s.cfg.Address()
}

// Start runs the server until ctx is canceled or the listener fails.
// Cancellation triggers a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("HTTP server starting", "address", s.cfg.Address(), "agents", len(s.agents))

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.tlsEnabled() {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

func (s *Server) tlsEnabled() bool {
	return s.cfg.TLS != nil && config.BoolValue(s.cfg.TLS.Enabled, false)
}

// Shutdown drains in-flight requests, waiting at most five seconds.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	slog.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}
