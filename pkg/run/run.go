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

// Package run tracks agent run lifecycles.
//
// A Run is one request/response exchange with an agent. Runs move through
// a small state machine:
//
//	submitted → working → completed | failed | canceled
//	            working → input_required → working → ...
//
// input_required marks a run paused on pending approval requirements; the
// run resumes once every requirement is decided and resolved.
package run

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reins-ai/reins/pkg/model"
)

// State represents the current state of a run.
type State string

const (
	// StateSubmitted means the run has been accepted but not started.
	StateSubmitted State = "submitted"

	// StateWorking means the run is being processed.
	StateWorking State = "working"

	// StateInputRequired means the run is paused on pending approvals.
	StateInputRequired State = "input_required"

	// StateCompleted means the run finished successfully.
	StateCompleted State = "completed"

	// StateFailed means the run failed with an error.
	StateFailed State = "failed"

	// StateCanceled means the run was canceled.
	StateCanceled State = "canceled"
)

// IsTerminal returns whether this state is terminal.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled:
		return true
	}
	return false
}

// IsPaused returns whether the run is waiting for a decision.
func (s State) IsPaused() bool {
	return s == StateInputRequired
}

// Status contains the run state and an optional message.
type Status struct {
	State State `json:"state"`

	// Message describes the state for humans (final answer, pause
	// prompt, failure summary).
	Message string `json:"message,omitempty"`

	// Error holds the failure reason for failed runs.
	Error string `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Run represents one exchange with an agent.
type Run struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`

	// SessionID links this run to a conversation.
	SessionID string `json:"session_id"`

	// AgentName identifies the agent serving the run.
	AgentName string `json:"agent_name"`

	// Status contains the current state.
	Status Status `json:"status"`

	// History is the run-scoped message history.
	History []*model.Message `json:"history,omitempty"`

	// PendingRequirements lists approval requirement IDs this run is
	// paused on (input_required only).
	PendingRequirements []string `json:"pending_requirements,omitempty"`

	// Metadata contains additional run data.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is when the run was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the run was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a run in the submitted state.
func New(sessionID, agentName string) *Run {
	now := time.Now()
	return &Run{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		AgentName: agentName,
		Status: Status{
			State:     StateSubmitted,
			Timestamp: now,
		},
		Metadata:  make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetStatus updates the run status.
func (r *Run) SetStatus(state State, message string, errMsg string) {
	now := time.Now()
	r.Status = Status{
		State:     state,
		Message:   message,
		Error:     errMsg,
		Timestamp: now,
	}
	r.UpdatedAt = now
}

// RequireInput pauses the run on the given approval requirements.
func (r *Run) RequireInput(requirementIDs ...string) {
	r.PendingRequirements = append(r.PendingRequirements, requirementIDs...)
	r.SetStatus(StateInputRequired, "waiting for approval", "")
}

// ClearRequirement removes one requirement from the pending set. Once the
// set is empty the caller moves the run back to working.
func (r *Run) ClearRequirement(requirementID string) {
	kept := r.PendingRequirements[:0]
	for _, id := range r.PendingRequirements {
		if id != requirementID {
			kept = append(kept, id)
		}
	}
	r.PendingRequirements = kept
	r.UpdatedAt = time.Now()
}

// AppendHistory adds messages to the run history.
func (r *Run) AppendHistory(msgs ...*model.Message) {
	r.History = append(r.History, msgs...)
	r.UpdatedAt = time.Now()
}

// Clone returns a deep-enough copy for hand-off across goroutines.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	clone := *r
	if r.History != nil {
		clone.History = make([]*model.Message, len(r.History))
		copy(clone.History, r.History)
	}
	if r.PendingRequirements != nil {
		clone.PendingRequirements = append([]string(nil), r.PendingRequirements...)
	}
	if r.Metadata != nil {
		clone.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// Service manages run persistence.
type Service interface {
	// Create creates a new run in the submitted state.
	Create(ctx context.Context, sessionID, agentName string) (*Run, error)

	// Get retrieves a run by ID.
	Get(ctx context.Context, runID string) (*Run, error)

	// Update saves run changes.
	Update(ctx context.Context, run *Run) error

	// Cancel cancels a non-terminal run.
	Cancel(ctx context.Context, runID string) error

	// List lists runs for a session, newest first.
	List(ctx context.Context, sessionID string) ([]*Run, error)

	// Close releases service resources.
	Close() error
}

// Errors
var (
	ErrRunNotFound = &Error{Code: "run_not_found", Message: "run not found"}
	ErrRunTerminal = &Error{Code: "run_terminal", Message: "run is in terminal state"}
)

// Error is a run-related error.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// InMemoryService is an in-memory implementation of Service.
type InMemoryService struct {
	runs map[string]*Run
	mu   sync.RWMutex
}

// NewInMemoryService creates a new in-memory run service.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{
		runs: make(map[string]*Run),
	}
}

// Create creates a new run.
func (s *InMemoryService) Create(_ context.Context, sessionID, agentName string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := New(sessionID, agentName)
	s.runs[r.ID] = r.Clone()
	return r, nil
}

// Get retrieves a run by ID.
func (s *InMemoryService) Get(_ context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return r.Clone(), nil
}

// Update saves run changes.
func (s *InMemoryService) Update(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	run.UpdatedAt = time.Now()
	s.runs[run.ID] = run.Clone()
	return nil
}

// Cancel cancels a run.
func (s *InMemoryService) Cancel(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	if r.Status.State.IsTerminal() {
		return ErrRunTerminal
	}

	r.SetStatus(StateCanceled, "", "")
	return nil
}

// List lists runs for a session, newest first.
func (s *InMemoryService) List(_ context.Context, sessionID string) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Run
	for _, r := range s.runs {
		if r.SessionID == sessionID {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Close implements Service.
func (s *InMemoryService) Close() error {
	return nil
}

var _ Service = (*InMemoryService)(nil)
