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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/reins-ai/reins/pkg/agent"
	"github.com/reins-ai/reins/pkg/approval"
	"github.com/reins-ai/reins/pkg/run"
)

// startRunRequest is the body of POST /v1/runs.
type startRunRequest struct {
	// Agent names the agent to run. Optional when exactly one agent is
	// configured.
	Agent string `json:"agent,omitempty"`

	// Input is the user message.
	Input string `json:"input"`

	// SessionID continues an existing conversation. A new session is
	// created when empty.
	SessionID string `json:"session_id,omitempty"`

	// UserID scopes sessions per user.
	UserID string `json:"user_id,omitempty"`

	// State seeds session state for new sessions.
	State map[string]any `json:"state,omitempty"`
}

type agentInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	agents := make([]agentInfo, 0, len(s.agents))
	for _, ag := range s.agents {
		agents = append(agents, agentInfo{Name: ag.Name(), Description: ag.Description()})
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })

	respondJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

// handleStartRun starts a run. A completed run answers 200 with the
// final content; a run suspended on approvals answers 202 with the
// pending requirements so the client knows what to decide.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	ag, err := s.resolveAgent(req.Agent)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	var opts []agent.RunOption
	if req.SessionID != "" {
		opts = append(opts, agent.WithSession(req.SessionID))
	}
	if req.UserID != "" {
		opts = append(opts, agent.WithUser(req.UserID))
	}
	if len(req.State) > 0 {
		opts = append(opts, agent.WithState(req.State))
	}

	out, err := ag.Run(r.Context(), req.Input, opts...)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	respondJSON(w, statusForOutput(out), out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rn, err := s.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rn)
}

// handleRunRequirements lists the requirements a run is waiting on.
func (s *Server) handleRunRequirements(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	if _, err := s.runs.Get(r.Context(), runID); err != nil {
		s.respondDomainError(w, err)
		return
	}

	pending, err := s.approvals.ListPending(r.Context(), runID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if pending == nil {
		pending = []*approval.Requirement{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"run_id":       runID,
		"requirements": pending,
	})
}

// handleContinueRun resumes a paused run. When every requirement is
// decided the run re-enters the model loop and the response carries the
// outcome; while some are still pending it answers 202 with what is left.
func (s *Server) handleContinueRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	ag, _, err := s.agentForRun(r.Context(), runID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	out, err := ag.ContinueRun(r.Context(), runID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	respondJSON(w, statusForOutput(out), out)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.decideRequirement(w, r, true)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.decideRequirement(w, r, false)
}

// decideRequirement records an approval decision. The decision goes
// through the owning agent's approval service so the wait time metric is
// recorded; the updated requirement is returned so the client sees the
// new status without a second request.
func (s *Server) decideRequirement(w http.ResponseWriter, r *http.Request, approved bool) {
	id := chi.URLParam(r, "id")

	req, err := s.approvals.Get(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	ag, _, err := s.agentForRun(r.Context(), req.RunID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	if err := ag.Approvals().Decide(r.Context(), id, approved); err != nil {
		s.respondDomainError(w, err)
		return
	}

	decided, err := s.approvals.Get(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, decided)
}

// resolveAgent finds the named agent. An empty name resolves to the sole
// agent when only one is configured.
func (s *Server) resolveAgent(name string) (*agent.Agent, error) {
	if name == "" {
		if len(s.agents) == 1 {
			for _, ag := range s.agents {
				return ag, nil
			}
		}
		return nil, fmt.Errorf("agent is required (available: %s)", s.agentNames())
	}

	ag, ok := s.agents[name]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q (available: %s)", name, s.agentNames())
	}
	return ag, nil
}

func (s *Server) agentNames() string {
	names := make([]string, 0, len(s.agents))
	for name := range s.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// agentForRun loads a run and routes back to the agent serving it.
func (s *Server) agentForRun(ctx context.Context, runID string) (*agent.Agent, *run.Run, error) {
	rn, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, nil, err
	}

	ag, ok := s.agents[rn.AgentName]
	if !ok {
		return nil, nil, fmt.Errorf("%w: agent %q is no longer configured", run.ErrRunNotFound, rn.AgentName)
	}
	return ag, rn, nil
}

func statusForOutput(out *agent.RunOutput) int {
	if out.Paused() {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps domain errors onto HTTP statuses: missing
// records are 404, state conflicts (already decided, not paused,
// terminal) are 409, guardrail blocks are 422, bad input is 400.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	var inputErr *agent.InputError
	switch {
	case errors.As(err, &inputErr):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, run.ErrRunNotFound), errors.Is(err, approval.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, agent.ErrRunNotPaused),
		errors.Is(err, agent.ErrWrongAgent),
		errors.Is(err, run.ErrRunTerminal),
		errors.Is(err, approval.ErrNotPending),
		errors.Is(err, approval.ErrResolved):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, agent.ErrEmptyInput):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Request failed", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
