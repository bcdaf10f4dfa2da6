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

// Package agent implements the model loop that turns a user message into
// a completed run.
//
// Run drives the loop: render the instruction against session state, call
// the model, execute the tool calls it requests, feed the results back,
// repeat until the model answers in text. Tool calls that require approval
// suspend the loop instead of executing; the run parks in input_required
// and Run returns the pending requirements. After a decision is recorded,
// ContinueRun resolves each requirement into a tool result message and
// re-enters the loop. A run that is not paused cannot be continued, so a
// suspension point is passed exactly once.
//
// Conversation history, key-value state, and run records live in the
// session and run services, which is what lets a suspended run resume in a
// different process than the one that started it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/reins-ai/reins/pkg/approval"
	"github.com/reins-ai/reins/pkg/guardrail"
	"github.com/reins-ai/reins/pkg/knowledge"
	"github.com/reins-ai/reins/pkg/memory"
	"github.com/reins-ai/reins/pkg/model"
	"github.com/reins-ai/reins/pkg/run"
	"github.com/reins-ai/reins/pkg/schema"
	"github.com/reins-ai/reins/pkg/session"
	"github.com/reins-ai/reins/pkg/tool"
)

const (
	// DefaultMaxIterations caps the model loop when Config.MaxIterations
	// is zero.
	DefaultMaxIterations = 10

	// DefaultUserID is used when a run does not name a user.
	DefaultUserID = "default"

	// DefaultKnowledgeResults is the retrieval depth when
	// Config.KnowledgeResults is zero.
	DefaultKnowledgeResults = 5
)

// Run metadata keys. The session key of a run is (app, user, session ID);
// the run record carries app and user so ContinueRun can reopen the
// session without the caller restating them.
const (
	metaAppName = "app_name"
	metaUserID  = "user_id"
)

// Config describes an agent.
type Config struct {
	// Name identifies the agent. Required, and must be unique within a
	// server since runs are routed back to their agent by name.
	Name string

	// Description says what the agent is for. Surfaced in agent listings
	// and used as the tool description when the agent is wrapped as a
	// tool.
	Description string

	// Instruction is the system prompt template. Placeholders such as
	// {watchlist} are re-rendered against session state on every model
	// call, so state written by one tool is visible to the next prompt.
	Instruction string

	// Model generates responses. Required.
	Model model.LLM

	// GenerateConfig tunes generation. Optional.
	GenerateConfig *model.GenerateConfig

	// Tools are registered under their names at construction.
	Tools []tool.Tool

	// Toolsets contribute tools resolved lazily at run time, so a slow
	// or unreachable MCP server does not block construction.
	Toolsets []tool.Toolset

	// Guardrails screen user input before any model call.
	Guardrails []guardrail.Guardrail

	// Sessions stores conversation history and state. Defaults to the
	// in-memory service.
	Sessions session.Service

	// Runs stores run records. Defaults to the in-memory service.
	Runs run.Service

	// ApprovalStore persists approval requirements. Defaults to the
	// in-memory store. Use a SQL store when decisions must survive the
	// process.
	ApprovalStore approval.Store

	// Registry holds the agent's tools. Defaults to a fresh registry;
	// pass a shared one to let agents see each other's tools.
	Registry *tool.Registry

	// Memory bounds the history sent to the model. Optional; without it
	// the full history is sent.
	Memory *memory.Window

	// Summarizer folds overflow history into a rolling summary. Only
	// used together with Memory.
	Summarizer *memory.Summarizer

	// Knowledge is searched with the latest user message and the hits
	// are injected into the system prompt. Its search tool is also
	// registered so the model can query it directly.
	Knowledge *knowledge.Base

	// KnowledgeResults caps retrieval hits per model call.
	KnowledgeResults int

	// OutputSchema constrains the final answer to a JSON schema. The
	// answer is validated before it is returned.
	OutputSchema map[string]any

	// OutputKey stores the final answer into session state under this
	// key, where later runs and other agents can read it.
	OutputKey string

	// SessionState seeds the state of sessions this agent creates.
	SessionState map[string]any

	// MaxIterations caps model calls per run.
	MaxIterations int

	// AppName scopes sessions. Defaults to Name.
	AppName string
}

// Agent runs conversations against a model with tools, sessions, and an
// approval gate. Safe for concurrent use; per-run mutable data lives in
// the run and session records, not on the Agent.
type Agent struct {
	name         string
	description  string
	instruction  string
	appName      string
	model        model.LLM
	genConfig    *model.GenerateConfig
	toolsets     []tool.Toolset
	guardrails   guardrail.Chain
	sessions     session.Service
	runs         run.Service
	approvals    *approval.Service
	registry     *tool.Registry
	window       *memory.Window
	summarizer   *memory.Summarizer
	knowledge    *knowledge.Base
	knowledgeTop int
	output       *schema.Validator
	outputKey    string
	stateSeed    map[string]any
	maxIter      int

	// active maps run IDs to their live sessions for the duration of a
	// Run or ContinueRun call, so the approval context builder can hand
	// executing tools the same state snapshot the loop uses.
	mu     sync.Mutex
	active map[string]*session.Session
}

// New builds an agent from cfg.
func New(cfg Config) (*Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("agent %q: model is required", cfg.Name)
	}

	a := &Agent{
		name:         cfg.Name,
		description:  cfg.Description,
		instruction:  cfg.Instruction,
		appName:      cfg.AppName,
		model:        cfg.Model,
		genConfig:    cfg.GenerateConfig,
		toolsets:     cfg.Toolsets,
		guardrails:   guardrail.Chain(cfg.Guardrails),
		sessions:     cfg.Sessions,
		runs:         cfg.Runs,
		registry:     cfg.Registry,
		window:       cfg.Memory,
		summarizer:   cfg.Summarizer,
		knowledge:    cfg.Knowledge,
		knowledgeTop: cfg.KnowledgeResults,
		outputKey:    cfg.OutputKey,
		maxIter:      cfg.MaxIterations,
		active:       make(map[string]*session.Session),
	}
	if a.appName == "" {
		a.appName = cfg.Name
	}
	if a.sessions == nil {
		a.sessions = session.NewInMemoryService()
	}
	if a.runs == nil {
		a.runs = run.NewInMemoryService()
	}
	if a.registry == nil {
		a.registry = tool.NewRegistry()
	}
	if a.maxIter <= 0 {
		a.maxIter = DefaultMaxIterations
	}
	if a.knowledgeTop <= 0 {
		a.knowledgeTop = DefaultKnowledgeResults
	}
	if len(cfg.SessionState) > 0 {
		a.stateSeed = maps.Clone(cfg.SessionState)
	}

	for _, t := range cfg.Tools {
		if err := a.registry.Register(t); err != nil {
			return nil, fmt.Errorf("agent %q: %w", cfg.Name, err)
		}
	}
	if a.knowledge != nil {
		st, err := a.knowledge.SearchTool()
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", cfg.Name, err)
		}
		// A shared registry may already hold the search tool.
		if err := a.registry.Register(st); err != nil && !errors.Is(err, tool.ErrDuplicateTool) {
			return nil, fmt.Errorf("agent %q: %w", cfg.Name, err)
		}
	}

	if cfg.OutputSchema != nil {
		v, err := schema.NewValidator(cfg.OutputSchema)
		if err != nil {
			return nil, fmt.Errorf("agent %q: invalid output schema: %w", cfg.Name, err)
		}
		a.output = v
	}

	store := cfg.ApprovalStore
	if store == nil {
		store = approval.NewMemoryStore()
	}
	a.approvals = approval.NewService(a.registry, store,
		approval.WithContextBuilder(a.toolContext))

	return a, nil
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent description.
func (a *Agent) Description() string { return a.description }

// Approvals returns the approval service. Decisions recorded here, by a
// CLI prompt or an HTTP handler, are what ContinueRun resumes.
func (a *Agent) Approvals() *approval.Service { return a.approvals }

// Runs returns the run service.
func (a *Agent) Runs() run.Service { return a.runs }

// Sessions returns the session service.
func (a *Agent) Sessions() session.Service { return a.sessions }

// Registry returns the tool registry.
func (a *Agent) Registry() *tool.Registry { return a.registry }

// Close releases the agent's toolset connections. Sessions, runs, and the
// model belong to the caller.
func (a *Agent) Close() error {
	var errs []error
	for _, ts := range a.toolsets {
		if err := ts.Close(); err != nil {
			errs = append(errs, fmt.Errorf("toolset %s: %w", ts.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// resolveToolsets registers every toolset tool that is not already in the
// registry. Called at the start of each run rather than at construction:
// toolset membership can change between runs, and a resumed run needs its
// remote tools registered before approval resolution can execute them.
func (a *Agent) resolveToolsets(ctx context.Context) {
	for _, ts := range a.toolsets {
		tools, err := ts.Tools(ctx)
		if err != nil {
			slog.Warn("Toolset failed to provide tools",
				"agent", a.name,
				"toolset", ts.Name(),
				"error", err)
			continue
		}
		for _, t := range tools {
			if err := a.registry.Register(t); err != nil && !errors.Is(err, tool.ErrDuplicateTool) {
				slog.Warn("Failed to register toolset tool",
					"agent", a.name,
					"toolset", ts.Name(),
					"tool", t.Name(),
					"error", err)
			}
		}
	}
}

func (a *Agent) track(runID string, sess *session.Session) {
	a.mu.Lock()
	a.active[runID] = sess
	a.mu.Unlock()
}

func (a *Agent) untrack(runID string) {
	a.mu.Lock()
	delete(a.active, runID)
	a.mu.Unlock()
}

// toolContext builds the execution context for a tool handler. State
// resolution prefers the live session of an active run and falls back to
// loading the session named in the run record, so a requirement resumed
// through the approval service directly still executes against real
// session state.
func (a *Agent) toolContext(ctx context.Context, runID string, call tool.Call) tool.Context {
	opts := tool.ContextOptions{CallID: call.ID, RunID: runID}
	if sess := a.sessionFor(ctx, runID); sess != nil {
		opts.State = &persistedState{ctx: ctx, svc: a.sessions, sess: sess}
	}
	return tool.NewContext(ctx, opts)
}

func (a *Agent) sessionFor(ctx context.Context, runID string) *session.Session {
	if runID == "" {
		return nil
	}

	a.mu.Lock()
	sess := a.active[runID]
	a.mu.Unlock()
	if sess != nil {
		return sess
	}

	r, err := a.runs.Get(ctx, runID)
	if err != nil {
		slog.Warn("Tool context has no session; state will not persist",
			"agent", a.name, "run", runID, "error", err)
		return nil
	}
	sess, err = a.attachRun(ctx, r)
	if err != nil {
		slog.Warn("Tool context has no session; state will not persist",
			"agent", a.name, "run", runID, "error", err)
		return nil
	}
	return sess
}

// openSession loads the named session or creates one. Creation seeds the
// configured state first, then the per-run state on top.
func (a *Agent) openSession(ctx context.Context, o *RunOptions) (*session.Session, error) {
	if o.SessionID != "" {
		sess, err := a.sessions.Get(ctx, &session.GetRequest{
			AppName:   a.appName,
			UserID:    o.UserID,
			SessionID: o.SessionID,
		})
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
	}

	var seed map[string]any
	if len(a.stateSeed) > 0 || len(o.State) > 0 {
		seed = make(map[string]any, len(a.stateSeed)+len(o.State))
		maps.Copy(seed, a.stateSeed)
		maps.Copy(seed, o.State)
	}
	sess, err := a.sessions.Create(ctx, &session.CreateRequest{
		AppName:   a.appName,
		UserID:    o.UserID,
		SessionID: o.SessionID,
		State:     seed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// attachRun reopens the session a run was started on, using the app and
// user recorded in the run metadata.
func (a *Agent) attachRun(ctx context.Context, r *run.Run) (*session.Session, error) {
	appName, _ := r.Metadata[metaAppName].(string)
	userID, _ := r.Metadata[metaUserID].(string)
	if appName == "" {
		appName = a.appName
	}
	if userID == "" {
		userID = DefaultUserID
	}
	sess, err := a.sessions.Get(ctx, &session.GetRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: r.SessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load session for run %s: %w", r.ID, err)
	}
	return sess, nil
}
