package approval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reins-ai/reins/pkg/tool"
	"github.com/reins-ai/reins/pkg/tool/functiontool"
)

// countingTool records how many times its handler ran.
type countingTool struct {
	name     string
	gated    bool
	calls    atomic.Int64
	fail     error
	panicMsg string
}

func (c *countingTool) Name() string           { return c.name }
func (c *countingTool) Description() string    { return "counting tool " + c.name }
func (c *countingTool) RequiresApproval() bool { return c.gated }
func (c *countingTool) Schema() map[string]any { return nil }

func (c *countingTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	c.calls.Add(1)
	if c.panicMsg != "" {
		panic(c.panicMsg)
	}
	if c.fail != nil {
		return nil, c.fail
	}
	return map[string]any{"ok": true, "args": args}, nil
}

func newTestService(t *testing.T, tools ...tool.Tool) (*Service, *tool.Registry) {
	t.Helper()
	reg := tool.NewRegistry()
	for _, tl := range tools {
		require.NoError(t, reg.Register(tl))
	}
	return NewService(reg, NewMemoryStore()), reg
}

// TestInvoke_UngatedExecutesImmediately verifies that tools without the
// approval flag run at once and never produce a requirement
func TestInvoke_UngatedExecutesImmediately(t *testing.T) {
	ct := &countingTool{name: "get_time"}
	svc, _ := newTestService(t, ct)

	inv, err := svc.Invoke(context.Background(), "run-1", "get_time", map[string]any{"tz": "UTC"})
	require.NoError(t, err)
	require.NotNil(t, inv.Result)
	assert.Nil(t, inv.Requirement)
	assert.False(t, inv.Suspended())

	assert.Equal(t, StatusExecuted, inv.Result.Status)
	assert.Equal(t, int64(1), ct.calls.Load())

	// No pending requirement exists anywhere.
	pending, err := svc.Pending(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// TestInvoke_UngatedHandlerFailure verifies handler errors surface as a
// failed result, not as an error
func TestInvoke_UngatedHandlerFailure(t *testing.T) {
	ct := &countingTool{name: "flaky", fail: fmt.Errorf("upstream unavailable")}
	svc, _ := newTestService(t, ct)

	inv, err := svc.Invoke(context.Background(), "run-1", "flaky", nil)
	require.NoError(t, err)
	require.NotNil(t, inv.Result)
	assert.Equal(t, StatusFailed, inv.Result.Status)
	assert.Contains(t, inv.Result.Reason, "upstream unavailable")
}

// TestInvoke_GatedSuspends verifies that gated tools never run before a
// decision and produce a pending requirement instead
func TestInvoke_GatedSuspends(t *testing.T) {
	ct := &countingTool{name: "send_email", gated: true}
	svc, _ := newTestService(t, ct)

	inv, err := svc.Invoke(context.Background(), "run-1", "send_email",
		map[string]any{"to": "ops@example.com"})
	require.NoError(t, err)
	require.NotNil(t, inv.Requirement)
	assert.Nil(t, inv.Result)
	assert.True(t, inv.Suspended())

	r := inv.Requirement
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, "send_email", r.Action.Tool)
	assert.Equal(t, StatusPending, r.Status)

	// The suspension point: no handler side effects before approval.
	assert.Equal(t, int64(0), ct.calls.Load())
}

// TestInvoke_UnknownTool verifies lookup failures
func TestInvoke_UnknownTool(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Invoke(context.Background(), "run-1", "missing", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tool.ErrToolNotFound))
}

// TestApproveResume_ExecutesExactlyOnce covers the happy path:
// pending → approved → executed with a single handler call
func TestApproveResume_ExecutesExactlyOnce(t *testing.T) {
	ct := &countingTool{name: "place_order", gated: true}
	svc, _ := newTestService(t, ct)

	inv, err := svc.Invoke(context.Background(), "run-1", "place_order",
		map[string]any{"symbol": "AAPL", "qty": 10})
	require.NoError(t, err)
	id := inv.Requirement.ID

	require.NoError(t, svc.Approve(context.Background(), id))
	assert.Equal(t, int64(0), ct.calls.Load(), "approve alone must not execute")

	res, err := svc.Resume(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, res.Status)
	assert.Equal(t, id, res.RequirementID)
	assert.Equal(t, true, res.Value["ok"])
	assert.Equal(t, int64(1), ct.calls.Load())

	stored, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, stored.Status)
	assert.False(t, stored.DecidedAt.IsZero())
	assert.False(t, stored.ResolvedAt.IsZero())
}

// TestRejectResume_SkippedWithoutHandler verifies the reject path:
// pending → rejected → skipped, handler never called
func TestRejectResume_SkippedWithoutHandler(t *testing.T) {
	ct := &countingTool{name: "delete_file", gated: true}
	svc, _ := newTestService(t, ct)

	inv, err := svc.Invoke(context.Background(), "run-1", "delete_file",
		map[string]any{"path": "/tmp/x"})
	require.NoError(t, err)
	id := inv.Requirement.ID

	require.NoError(t, svc.Reject(context.Background(), id))

	res, err := svc.Resume(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, int64(0), ct.calls.Load())
}

// TestResume_PendingFails verifies resume before any decision
func TestResume_PendingFails(t *testing.T) {
	ct := &countingTool{name: "send_email", gated: true}
	svc, _ := newTestService(t, ct)

	inv, err := svc.Invoke(context.Background(), "run-1", "send_email", nil)
	require.NoError(t, err)

	_, err = svc.Resume(context.Background(), inv.Requirement.ID)
	assert.ErrorIs(t, err, ErrNotDecided)
	assert.Equal(t, int64(0), ct.calls.Load())

	// The failed resume leaves the requirement pending and decidable.
	require.NoError(t, svc.Approve(context.Background(), inv.Requirement.ID))
}

// TestResume_TwiceFails verifies resume idempotency: the second call
// fails and the handler runs at most once
func TestResume_TwiceFails(t *testing.T) {
	ct := &countingTool{name: "place_order", gated: true}
	svc, _ := newTestService(t, ct)

	inv, err := svc.Invoke(context.Background(), "run-1", "place_order", nil)
	require.NoError(t, err)
	id := inv.Requirement.ID

	require.NoError(t, svc.Approve(context.Background(), id))

	_, err = svc.Resume(context.Background(), id)
	require.NoError(t, err)

	_, err = svc.Resume(context.Background(), id)
	assert.ErrorIs(t, err, ErrResolved)
	assert.Equal(t, int64(1), ct.calls.Load(), "handler must not re-execute")
}

// TestDecide_NonPendingFails verifies approve/reject reject non-pending
// requirements and leave stored state untouched
func TestDecide_NonPendingFails(t *testing.T) {
	ct := &countingTool{name: "send_email", gated: true}
	svc, _ := newTestService(t, ct)

	inv, err := svc.Invoke(context.Background(), "run-1", "send_email", nil)
	require.NoError(t, err)
	id := inv.Requirement.ID

	require.NoError(t, svc.Approve(context.Background(), id))

	assert.ErrorIs(t, svc.Approve(context.Background(), id), ErrNotPending)
	assert.ErrorIs(t, svc.Reject(context.Background(), id), ErrNotPending)

	stored, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status, "failed decide must not change state")

	assert.ErrorIs(t, svc.Approve(context.Background(), "no-such-id"), ErrNotFound)
}

// TestResume_HandlerErrorCapturedAsFailed verifies handler errors resolve
// the requirement to failed instead of propagating
func TestResume_HandlerErrorCapturedAsFailed(t *testing.T) {
	ct := &countingTool{name: "send_email", gated: true, fail: fmt.Errorf("smtp: connection refused")}
	svc, _ := newTestService(t, ct)

	inv, err := svc.Invoke(context.Background(), "run-1", "send_email", nil)
	require.NoError(t, err)
	id := inv.Requirement.ID

	require.NoError(t, svc.Approve(context.Background(), id))

	res, err := svc.Resume(context.Background(), id)
	require.NoError(t, err, "handler failure must not surface as a resume error")
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Reason, "connection refused")

	stored, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
}

// TestResume_HandlerPanicCapturedAsFailed verifies panic recovery
func TestResume_HandlerPanicCapturedAsFailed(t *testing.T) {
	ct := &countingTool{name: "risky", gated: true, panicMsg: "boom"}
	svc, _ := newTestService(t, ct)

	inv, err := svc.Invoke(context.Background(), "run-1", "risky", nil)
	require.NoError(t, err)
	id := inv.Requirement.ID

	require.NoError(t, svc.Approve(context.Background(), id))

	res, err := svc.Resume(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Reason, "boom")
}

// TestPending_FiltersByRun verifies the pending query scoping
func TestPending_FiltersByRun(t *testing.T) {
	ct := &countingTool{name: "send_email", gated: true}
	svc, _ := newTestService(t, ct)

	inv1, err := svc.Invoke(context.Background(), "run-1", "send_email", nil)
	require.NoError(t, err)
	_, err = svc.Invoke(context.Background(), "run-2", "send_email", nil)
	require.NoError(t, err)

	pending, err := svc.Pending(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, inv1.Requirement.ID, pending[0].ID)

	all, err := svc.Pending(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Resolved requirements drop out of the pending view.
	require.NoError(t, svc.Reject(context.Background(), inv1.Requirement.ID))
	pending, err = svc.Pending(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// TestDeleteFileScenario walks the canonical gated-action example end to
// end: reject keeps the file on disk
func TestDeleteFileScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x")
	require.NoError(t, os.WriteFile(path, []byte("precious"), 0644))

	type DeleteArgs struct {
		Path string `json:"path" jsonschema:"required,description=File to delete"`
	}
	deleteTool, err := functiontool.New(
		functiontool.Config{
			Name:             "delete_file",
			Description:      "Deletes a file from the filesystem",
			RequiresApproval: true,
		},
		func(ctx tool.Context, args DeleteArgs) (map[string]any, error) {
			if err := os.Remove(args.Path); err != nil {
				return nil, err
			}
			return map[string]any{"deleted": args.Path}, nil
		},
	)
	require.NoError(t, err)

	svc, _ := newTestService(t, deleteTool)

	inv, err := svc.Invoke(context.Background(), "run-1", "delete_file", map[string]any{"path": path})
	require.NoError(t, err)
	require.True(t, inv.Suspended())

	require.NoError(t, svc.Reject(context.Background(), inv.Requirement.ID))

	res, err := svc.Resume(context.Background(), inv.Requirement.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)

	// The file is untouched.
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

// TestConcurrentResume verifies at-most-once execution when resumes race
func TestConcurrentResume(t *testing.T) {
	ct := &countingTool{name: "place_order", gated: true}
	svc, _ := newTestService(t, ct)

	inv, err := svc.Invoke(context.Background(), "run-1", "place_order", nil)
	require.NoError(t, err)
	id := inv.Requirement.ID
	require.NoError(t, svc.Approve(context.Background(), id))

	var wg sync.WaitGroup
	var successes atomic.Int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Resume(context.Background(), id); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes.Load(), "exactly one resume succeeds")
	assert.Equal(t, int64(1), ct.calls.Load(), "handler executes at most once")
}

// TestContextBuilder verifies the installed builder supplies state to the
// handler at resume time
func TestContextBuilder(t *testing.T) {
	state := tool.NewMemoryState(map[string]any{"user": "ada"})

	type NoteArgs struct {
		Text string `json:"text" jsonschema:"required,description=Note text"`
	}
	noteTool, err := functiontool.New(
		functiontool.Config{Name: "add_note", Description: "Add a note", RequiresApproval: true},
		func(ctx tool.Context, args NoteArgs) (map[string]any, error) {
			user, err := ctx.State().Get("user")
			if err != nil {
				return nil, err
			}
			return map[string]any{"note": args.Text, "user": user}, nil
		},
	)
	require.NoError(t, err)

	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(noteTool))

	svc := NewService(reg, NewMemoryStore(), WithContextBuilder(
		func(ctx context.Context, runID string, call tool.Call) tool.Context {
			return tool.NewContext(ctx, tool.ContextOptions{CallID: call.ID, RunID: runID, State: state})
		}))

	inv, err := svc.Invoke(context.Background(), "run-1", "add_note", map[string]any{"text": "hi"})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(context.Background(), inv.Requirement.ID))

	res, err := svc.Resume(context.Background(), inv.Requirement.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, res.Status)
	assert.Equal(t, "ada", res.Value["user"])
}
