package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reins-ai/reins/pkg/observability"
	"github.com/reins-ai/reins/pkg/tool"
)

// ContextBuilder constructs the tool.Context a handler executes under.
// The default builds a bare context; the agent runtime installs a builder
// that attaches session state, so handlers resumed long after the original
// invocation still see the right state.
type ContextBuilder func(ctx context.Context, runID string, call tool.Call) tool.Context

// Invocation is the outcome of Invoke: exactly one of Result and
// Requirement is set.
type Invocation struct {
	// Result is set when the tool executed immediately (no approval
	// required). Handler failures surface here as a failed Result, not as
	// an error.
	Result *Result

	// Requirement is set when execution suspended pending a decision.
	Requirement *Requirement
}

// Suspended reports whether the invocation is waiting on a decision.
func (inv *Invocation) Suspended() bool {
	return inv.Requirement != nil
}

// Service is the confirmation gate and decision resolver. It is safe for
// concurrent use; per-requirement resume calls are expected to be
// sequential, with the status check as the final guard.
type Service struct {
	registry *tool.Registry
	store    Store
	build    ContextBuilder

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithContextBuilder overrides how tool contexts are constructed for
// execution.
func WithContextBuilder(b ContextBuilder) Option {
	return func(s *Service) {
		if b != nil {
			s.build = b
		}
	}
}

// NewService creates an approval service over a tool registry and a
// requirement store.
func NewService(registry *tool.Registry, store Store, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		store:    store,
		inflight: make(map[string]struct{}),
		build: func(ctx context.Context, runID string, call tool.Call) tool.Context {
			return tool.NewContext(ctx, tool.ContextOptions{CallID: call.ID, RunID: runID})
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InvokeOption configures a single Invoke call.
type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	callID string
}

// WithCallID records the model tool call ID the invocation answers.
func WithCallID(id string) InvokeOption {
	return func(o *invokeOptions) {
		o.callID = id
	}
}

// Invoke executes the named tool or suspends it behind a requirement.
//
// Ungated tools run immediately: the returned Invocation carries an
// executed Result, or a failed Result when the handler errors or panics.
// Gated tools never run here; a pending Requirement is stored and
// returned instead.
//
// Unknown tool names fail with an error wrapping tool.ErrToolNotFound.
func (s *Service) Invoke(ctx context.Context, runID, name string, args map[string]any, opts ...InvokeOption) (*Invocation, error) {
	var o invokeOptions
	for _, opt := range opts {
		opt(&o)
	}

	ct, err := s.registry.Callable(name)
	if err != nil {
		return nil, err
	}

	if !ct.RequiresApproval() {
		id := o.callID
		if id == "" {
			id = uuid.NewString()
		}
		call := tool.Call{ID: id, Name: name, Args: args}
		value, execErr := s.execute(ctx, runID, ct, call)
		res := &Result{RequirementID: call.ID, Status: StatusExecuted, Value: value}
		if execErr != nil {
			res = &Result{RequirementID: call.ID, Status: StatusFailed, Reason: execErr.Error()}
		}
		return &Invocation{Result: res}, nil
	}

	r := &Requirement{
		ID:        uuid.NewString(),
		RunID:     runID,
		Action:    Action{Tool: name, Args: copyMap(args), CallID: o.callID},
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.store.Put(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to store requirement: %w", err)
	}

	slog.Info("Tool call suspended pending approval",
		"requirement", r.ID, "tool", name, "run", runID)
	return &Invocation{Requirement: r.Clone()}, nil
}

// Approve transitions a pending requirement to approved. Any other
// current status fails with ErrNotPending and leaves the record unchanged.
func (s *Service) Approve(ctx context.Context, id string) error {
	return s.decide(ctx, id, StatusApproved)
}

// Reject transitions a pending requirement to rejected. Any other current
// status fails with ErrNotPending and leaves the record unchanged.
func (s *Service) Reject(ctx context.Context, id string) error {
	return s.decide(ctx, id, StatusRejected)
}

// Decide records an approve or reject decision in one call.
func (s *Service) Decide(ctx context.Context, id string, approved bool) error {
	if approved {
		return s.Approve(ctx, id)
	}
	return s.Reject(ctx, id)
}

func (s *Service) decide(ctx context.Context, id string, to Status) error {
	decided, err := s.store.Transition(ctx, id, StatusPending, to, func(r *Requirement) {
		r.DecidedAt = time.Now()
	})
	if errors.Is(err, ErrStatusConflict) {
		return ErrNotPending
	}
	if err != nil {
		return err
	}

	observability.Global().RecordDecision(ctx, string(to), decided.DecidedAt.Sub(decided.CreatedAt))
	slog.Info("Requirement decided", "requirement", id, "decision", to)
	return nil
}

// Resume carries out a decided requirement.
//
// Approved requirements execute their tool exactly once: the requirement
// resolves to executed with the tool's value, or to failed with the
// error (or panic) message. Rejected requirements resolve to skipped
// without the tool ever running.
//
// Resume on a pending requirement fails with ErrNotDecided. Resume on a
// resolved requirement fails with ErrResolved and never re-executes.
func (s *Service) Resume(ctx context.Context, id string) (*Result, error) {
	// A second resume racing the first would observe approved status
	// before the first records its outcome; the inflight set closes that
	// window.
	s.mu.Lock()
	if _, busy := s.inflight[id]; busy {
		s.mu.Unlock()
		return nil, ErrResolved
	}
	s.inflight[id] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
	}()

	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch r.Status {
	case StatusPending:
		return nil, ErrNotDecided

	case StatusRejected:
		resolved, err := s.store.Transition(ctx, id, StatusRejected, StatusSkipped, func(r *Requirement) {
			r.ResolvedAt = time.Now()
		})
		if errors.Is(err, ErrStatusConflict) {
			return nil, ErrResolved
		}
		if err != nil {
			return nil, err
		}
		observability.Global().RecordToolCall(ctx, r.Action.Tool, string(StatusSkipped), 0)
		slog.Info("Requirement skipped", "requirement", id, "tool", r.Action.Tool)
		return resultOf(resolved), nil

	case StatusApproved:
		value, execErr := s.executeRequirement(ctx, r)

		to := StatusExecuted
		update := func(rr *Requirement) {
			rr.Value = value
			rr.ResolvedAt = time.Now()
		}
		if execErr != nil {
			to = StatusFailed
			update = func(rr *Requirement) {
				rr.Reason = execErr.Error()
				rr.ResolvedAt = time.Now()
			}
		}

		resolved, err := s.store.Transition(ctx, id, StatusApproved, to, update)
		if errors.Is(err, ErrStatusConflict) {
			return nil, ErrResolved
		}
		if err != nil {
			return nil, err
		}

		slog.Info("Requirement resolved",
			"requirement", id, "tool", r.Action.Tool, "status", to)
		return resultOf(resolved), nil

	default:
		return nil, ErrResolved
	}
}

// executeRequirement runs the guarded tool. A missing tool (unregistered
// since invoke) is reported as an execution failure, not an infra error,
// so the requirement still reaches a terminal state.
func (s *Service) executeRequirement(ctx context.Context, r *Requirement) (map[string]any, error) {
	ct, err := s.registry.Callable(r.Action.Tool)
	if err != nil {
		return nil, err
	}
	callID := r.Action.CallID
	if callID == "" {
		callID = r.ID
	}
	call := tool.Call{ID: callID, Name: r.Action.Tool, Args: r.Action.Args}
	return s.execute(ctx, r.RunID, ct, call)
}

// execute invokes the tool handler with panic recovery. Handler panics
// come back as errors so the resolver can always record an outcome.
func (s *Service) execute(ctx context.Context, runID string, ct tool.CallableTool, call tool.Call) (value map[string]any, err error) {
	start := time.Now()
	defer func() {
		status := string(StatusExecuted)
		if err != nil {
			status = string(StatusFailed)
		}
		observability.Global().RecordToolCall(ctx, call.Name, status, time.Since(start))
	}()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %s panicked: %v", call.Name, rec)
		}
	}()

	toolCtx := s.build(ctx, runID, call)
	return ct.Call(toolCtx, call.Args)
}

// Get returns a snapshot of a requirement.
func (s *Service) Get(ctx context.Context, id string) (*Requirement, error) {
	return s.store.Get(ctx, id)
}

// Pending returns all pending requirements for a run, oldest first. An
// empty runID matches every run.
func (s *Service) Pending(ctx context.Context, runID string) ([]*Requirement, error) {
	return s.store.ListPending(ctx, runID)
}
