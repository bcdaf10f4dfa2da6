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

// Package approval implements the confirmation gate for tool execution.
//
// Tools marked with RequiresApproval do not run when invoked. Instead the
// invocation suspends into a Requirement with status pending, and nothing
// happens until an external decision arrives:
//
//	pending → approved → executed | failed
//	pending → rejected → skipped
//
// Executed, failed, and skipped are terminal; a requirement never leaves a
// terminal state and its handler runs at most once. Tools without the flag
// execute immediately on Invoke and never produce a Requirement.
//
// The Service is the library surface: Invoke, Approve, Reject, Resume, and
// Pending. Awaiter adds a blocking mode on top for interactive callers.
package approval

import (
	"time"
)

// Status is the lifecycle state of a requirement.
type Status string

const (
	// StatusPending means the requirement awaits a decision.
	StatusPending Status = "pending"

	// StatusApproved means the requirement was approved but not yet resumed.
	StatusApproved Status = "approved"

	// StatusRejected means the requirement was rejected but not yet resumed.
	StatusRejected Status = "rejected"

	// StatusExecuted means the tool ran successfully.
	StatusExecuted Status = "executed"

	// StatusFailed means the tool ran and returned an error or panicked.
	StatusFailed Status = "failed"

	// StatusSkipped means the tool was never run because the requirement
	// was rejected.
	StatusSkipped Status = "skipped"
)

// IsTerminal returns true for states no transition may leave.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusExecuted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// IsDecided returns true once a decision has been recorded.
func (s Status) IsDecided() bool {
	return s != StatusPending && s != ""
}

// Action is the tool call a requirement guards. It is immutable once the
// requirement is created.
type Action struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`

	// CallID correlates the action with the model tool call that
	// produced it, so a resumed result can answer the right call.
	CallID string `json:"call_id,omitempty"`
}

// Requirement tracks one gated tool invocation from suspension to its
// terminal outcome.
type Requirement struct {
	ID     string `json:"id"`
	RunID  string `json:"run_id,omitempty"`
	Action Action `json:"action"`
	Status Status `json:"status"`

	// Value holds the tool result once the requirement is executed.
	Value map[string]any `json:"value,omitempty"`

	// Reason explains a failed outcome.
	Reason string `json:"reason,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	DecidedAt  time.Time `json:"decided_at,omitempty"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
}

// Clone returns a deep-enough copy: Args and Value maps are copied so a
// caller cannot mutate stored state.
func (r *Requirement) Clone() *Requirement {
	if r == nil {
		return nil
	}
	out := *r
	out.Action.Args = copyMap(r.Action.Args)
	out.Value = copyMap(r.Value)
	return &out
}

// Result reports the terminal outcome of one invocation.
type Result struct {
	RequirementID string         `json:"requirement_id"`
	Status        Status         `json:"status"`
	Value         map[string]any `json:"value,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}

// resultOf projects a resolved requirement onto a Result.
func resultOf(r *Requirement) *Result {
	return &Result{
		RequirementID: r.ID,
		Status:        r.Status,
		Value:         copyMap(r.Value),
		Reason:        r.Reason,
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Error is an approval-related error.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Sentinel errors. All are recoverable: a failed call never corrupts
// registry or requirement state.
var (
	// ErrNotFound is returned when no requirement exists under an ID.
	ErrNotFound = &Error{Code: "requirement_not_found", Message: "requirement not found"}

	// ErrNotPending is returned by Approve and Reject when the requirement
	// has already been decided; the stored state is left untouched.
	ErrNotPending = &Error{Code: "not_pending", Message: "requirement is not pending"}

	// ErrNotDecided is returned by Resume while the requirement is still
	// pending.
	ErrNotDecided = &Error{Code: "not_decided", Message: "requirement has not been decided"}

	// ErrResolved is returned by Resume once the requirement reached a
	// terminal state. A second resume fails; it never re-executes.
	ErrResolved = &Error{Code: "already_resolved", Message: "requirement is already resolved"}
)
