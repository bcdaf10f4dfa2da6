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

// Package runtime assembles a deployment from configuration.
//
// NewWithConfig turns a config.Config into live components in dependency
// order: observability, stores, model providers, embedders, vector
// stores, knowledge bases, tools, guardrails, and finally the agents
// that reference them. The session, run, and approval stores are shared
// across all agents of a deployment, which is what lets the HTTP server
// route a requirement decision back to the agent that suspended on it.
//
// Agent construction is tolerant: an agent that fails to initialize is
// logged and skipped so one bad entry does not take down the rest. Only
// when no agent comes up at all does assembly fail.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/reins-ai/reins/pkg/agent"
	"github.com/reins-ai/reins/pkg/approval"
	"github.com/reins-ai/reins/pkg/config"
	"github.com/reins-ai/reins/pkg/embedder"
	"github.com/reins-ai/reins/pkg/knowledge"
	"github.com/reins-ai/reins/pkg/model"
	"github.com/reins-ai/reins/pkg/observability"
	"github.com/reins-ai/reins/pkg/run"
	"github.com/reins-ai/reins/pkg/session"
	"github.com/reins-ai/reins/pkg/tool/agenttool"
	"github.com/reins-ai/reins/pkg/vector"
)

// Runtime holds the live components of one configured deployment.
type Runtime struct {
	cfg *config.Config

	obs    *observability.Manager
	dbPool *config.DBPool

	llms      map[string]model.LLM
	embedders map[string]embedder.Embedder
	vectors   *vector.Registry
	knowledge map[string]*knowledge.Base

	sessions  session.Service
	runs      run.Service
	approvals approval.Store

	agents map[string]*agent.Agent
}

// Options configures New. When ConfigFile points at an existing file it
// is loaded and the remaining fields are ignored; otherwise they
// configure a single default agent, falling back to the environment for
// anything left unset.
type Options struct {
	// ConfigFile is the YAML configuration path.
	ConfigFile string

	// Provider selects the LLM provider (gemini, ollama).
	Provider string

	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// Model overrides the model name.
	Model string
}

// New builds a runtime from a config file, or from a minimal generated
// config when the file does not exist.
func New(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := resolveConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, cfg)
}

func resolveConfig(ctx context.Context, opts Options) (*config.Config, error) {
	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err == nil {
			cfg, loader, err := config.LoadConfigFile(ctx, opts.ConfigFile)
			if err != nil {
				return nil, err
			}
			// The watcher is never started here; callers that want live
			// reload load the config themselves.
			loader.Close()
			return cfg, nil
		}
	}

	cfg := &config.Config{
		LLMs: map[string]*config.LLMConfig{
			"default": {
				Provider: config.LLMProvider(opts.Provider),
				APIKey:   opts.APIKey,
				BaseURL:  opts.BaseURL,
				Model:    opts.Model,
			},
		},
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// NewWithConfig assembles a runtime from an already loaded config. The
// config must have defaults applied; configs from the loader or from
// Config.SetDefaults qualify.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	rt := &Runtime{
		cfg:       cfg,
		dbPool:    config.NewDBPool(),
		llms:      make(map[string]model.LLM),
		embedders: make(map[string]embedder.Embedder),
		vectors:   vector.NewRegistry(),
		knowledge: make(map[string]*knowledge.Base),
		agents:    make(map[string]*agent.Agent),
	}

	cleanupOnError := func() {
		if err := rt.Close(); err != nil {
			slog.Warn("Cleanup after failed initialization", "error", err)
		}
	}

	if obsCfg := cfg.Server.Observability; obsCfg != nil {
		rt.obs = observability.NewManager(*obsCfg)
		if err := rt.obs.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize observability: %w", err)
		}
		observability.SetGlobal(rt.obs.Metrics())
	}

	if err := rt.buildStores(); err != nil {
		cleanupOnError()
		return nil, err
	}
	if err := rt.buildProviders(ctx); err != nil {
		cleanupOnError()
		return nil, err
	}

	tools, toolsets, err := rt.buildTools()
	if err != nil {
		cleanupOnError()
		return nil, err
	}
	guardrails, err := rt.buildGuardrails()
	if err != nil {
		cleanupOnError()
		return nil, err
	}

	// Agents are keyed by their display name, which the run records
	// carry and the server routes on. byKey tracks the config key so
	// agent_tools references resolve even when the two differ.
	byKey := make(map[string]*agent.Agent, len(cfg.Agents))
	var failures []string
	successCount := 0

	for key, agentCfg := range cfg.Agents {
		if agentCfg == nil {
			continue
		}

		ag, err := rt.buildAgent(agentCfg, tools, toolsets, guardrails)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", key, err))
			slog.Warn("Failed to initialize agent", "agent", key, "error", err)
			continue
		}
		if _, exists := rt.agents[ag.Name()]; exists {
			failures = append(failures, fmt.Sprintf("%s: duplicate agent name %q", key, ag.Name()))
			slog.Warn("Duplicate agent name", "agent", key, "name", ag.Name())
			continue
		}

		rt.agents[ag.Name()] = ag
		byKey[key] = ag
		successCount++
	}

	if successCount == 0 {
		cleanupOnError()
		if len(failures) > 0 {
			return nil, fmt.Errorf("failed to initialize any agents (attempted: %d, failures: %v)",
				len(cfg.Agents), failures)
		}
		return nil, fmt.Errorf("no agents configured")
	}
	if len(failures) > 0 {
		slog.Warn("Some agents failed to initialize",
			"failed", len(failures),
			"total", len(cfg.Agents),
			"failures", failures)
	}

	if err := rt.wireAgentTools(byKey); err != nil {
		cleanupOnError()
		return nil, err
	}

	return rt, nil
}

// wireAgentTools registers sub-agents as tools on their parents. This is
// a second pass so that agents can delegate to each other regardless of
// construction order.
func (rt *Runtime) wireAgentTools(byKey map[string]*agent.Agent) error {
	for key, agentCfg := range rt.cfg.Agents {
		if agentCfg == nil || len(agentCfg.AgentTools) == 0 {
			continue
		}
		parent, ok := byKey[key]
		if !ok {
			continue
		}

		for _, subKey := range agentCfg.AgentTools {
			sub, ok := byKey[subKey]
			if !ok {
				slog.Warn("Agent tool unavailable", "agent", key, "tool_agent", subKey)
				continue
			}
			wrapped, err := agenttool.New(sub, nil)
			if err != nil {
				return fmt.Errorf("agent %q: failed to wrap agent tool %q: %w", key, subKey, err)
			}
			if err := parent.Registry().Register(wrapped); err != nil {
				return fmt.Errorf("agent %q: failed to register agent tool %q: %w", key, subKey, err)
			}
		}
	}
	return nil
}

// Config returns the configuration the runtime was built from.
func (rt *Runtime) Config() *config.Config { return rt.cfg }

// Agents returns all agents keyed by name.
func (rt *Runtime) Agents() map[string]*agent.Agent { return rt.agents }

// Agent returns the named agent.
func (rt *Runtime) Agent(name string) (*agent.Agent, bool) {
	ag, ok := rt.agents[name]
	return ag, ok
}

// Runs returns the shared run store.
func (rt *Runtime) Runs() run.Service { return rt.runs }

// Approvals returns the shared approval store.
func (rt *Runtime) Approvals() approval.Store { return rt.approvals }

// Sessions returns the shared session store.
func (rt *Runtime) Sessions() session.Service { return rt.sessions }

// Observability returns the observability manager, nil when none is
// configured.
func (rt *Runtime) Observability() *observability.Manager { return rt.obs }

// Knowledge returns the named knowledge base.
func (rt *Runtime) Knowledge(name string) (*knowledge.Base, bool) {
	kb, ok := rt.knowledge[name]
	return kb, ok
}

// Close releases every component the runtime owns, in reverse dependency
// order. Safe to call on a partially assembled runtime.
func (rt *Runtime) Close() error {
	var errs []error

	for name, ag := range rt.agents {
		if err := ag.Close(); err != nil {
			errs = append(errs, fmt.Errorf("agent %s: %w", name, err))
		}
	}
	for name, llm := range rt.llms {
		if err := llm.Close(); err != nil {
			errs = append(errs, fmt.Errorf("llm %s: %w", name, err))
		}
	}
	for name, emb := range rt.embedders {
		if err := emb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("embedder %s: %w", name, err))
		}
	}
	if err := rt.vectors.Close(); err != nil {
		errs = append(errs, fmt.Errorf("vector stores: %w", err))
	}
	if err := rt.dbPool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database pool: %w", err))
	}

	if rt.obs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.obs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observability: %w", err))
		}
		observability.SetGlobal(nil)
	}

	return errors.Join(errs...)
}
