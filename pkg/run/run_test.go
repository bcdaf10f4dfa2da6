package run

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reins-ai/reins/pkg/model"
	"github.com/reins-ai/reins/pkg/tool"
)

// TestState_Predicates verifies terminal and paused state classification
func TestState_Predicates(t *testing.T) {
	for _, s := range []State{StateCompleted, StateFailed, StateCanceled} {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
		assert.False(t, s.IsPaused())
	}
	for _, s := range []State{StateSubmitted, StateWorking, StateInputRequired} {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
	assert.True(t, StateInputRequired.IsPaused())
	assert.False(t, StateWorking.IsPaused())
}

// TestRun_RequireAndClear verifies the pause bookkeeping around approval
// requirements
func TestRun_RequireAndClear(t *testing.T) {
	r := New("sess-1", "assistant")
	assert.Equal(t, StateSubmitted, r.Status.State)

	r.RequireInput("req-1", "req-2")
	assert.Equal(t, StateInputRequired, r.Status.State)
	assert.Equal(t, []string{"req-1", "req-2"}, r.PendingRequirements)

	r.ClearRequirement("req-1")
	assert.Equal(t, []string{"req-2"}, r.PendingRequirements)

	r.ClearRequirement("req-2")
	assert.Empty(t, r.PendingRequirements)
}

// TestInMemoryService covers the full CRUD surface of the memory backend
func TestInMemoryService(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()

	r, err := svc.Create(ctx, "sess-1", "assistant")
	require.NoError(t, err)
	require.NotEmpty(t, r.ID)

	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "assistant", got.AgentName)

	// Snapshots are isolated from the store.
	got.SetStatus(StateFailed, "", "mutated")
	again, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, again.Status.State)

	// Update persists changes.
	got.SetStatus(StateWorking, "", "")
	got.AppendHistory(model.NewUserMessage("hello"))
	require.NoError(t, svc.Update(ctx, got))

	updated, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StateWorking, updated.Status.State)
	require.Len(t, updated.History, 1)
	assert.Equal(t, "hello", updated.History[0].Content)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, svc.Update(ctx, &Run{ID: "missing"}), ErrRunNotFound)
}

// TestInMemoryService_Cancel verifies cancellation and the terminal guard
func TestInMemoryService_Cancel(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()

	r, err := svc.Create(ctx, "sess-1", "assistant")
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, r.ID))

	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCanceled, got.Status.State)

	assert.ErrorIs(t, svc.Cancel(ctx, r.ID), ErrRunTerminal)
	assert.ErrorIs(t, svc.Cancel(ctx, "missing"), ErrRunNotFound)
}

// TestInMemoryService_List verifies session scoping and newest-first order
func TestInMemoryService_List(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()

	first, err := svc.Create(ctx, "sess-1", "assistant")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := svc.Create(ctx, "sess-1", "assistant")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "sess-2", "assistant")
	require.NoError(t, err)

	runs, err := svc.List(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)
}

func newSQLiteService(t *testing.T) *SQLService {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	svc, err := NewSQLService(db, "sqlite")
	require.NoError(t, err)
	return svc
}

// TestSQLService_RoundTrip verifies the SQL backend persists the full run
// shape including history and pending requirements
func TestSQLService_RoundTrip(t *testing.T) {
	svc := newSQLiteService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, "sess-1", "assistant")
	require.NoError(t, err)

	r.SetStatus(StateWorking, "", "")
	r.AppendHistory(
		model.NewUserMessage("delete /tmp/x"),
		&model.Message{
			Role:      model.RoleAssistant,
			ToolCalls: []tool.Call{{ID: "call_0", Name: "delete_file", Args: map[string]any{"path": "/tmp/x"}}},
		},
	)
	r.RequireInput("req-1")
	r.Metadata["source"] = "cli"
	require.NoError(t, svc.Update(ctx, r))

	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StateInputRequired, got.Status.State)
	assert.Equal(t, []string{"req-1"}, got.PendingRequirements)
	assert.Equal(t, "cli", got.Metadata["source"])
	require.Len(t, got.History, 2)
	assert.Equal(t, model.RoleUser, got.History[0].Role)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

// TestSQLService_CancelAndList verifies lifecycle operations on the SQL
// backend
func TestSQLService_CancelAndList(t *testing.T) {
	svc := newSQLiteService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, "sess-1", "assistant")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := svc.Create(ctx, "sess-1", "assistant")
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, first.ID))
	assert.ErrorIs(t, svc.Cancel(ctx, first.ID), ErrRunTerminal)

	runs, err := svc.List(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, StateCanceled, runs[1].Status.State)
}
