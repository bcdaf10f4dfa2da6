package approval

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reins-ai/reins/pkg/tool"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "approvals.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLStore(db, "sqlite")
	require.NoError(t, err)
	return store
}

// TestSQLStore_PutGet verifies persistence round-trips all requirement
// fields through the requirements table
func TestSQLStore_PutGet(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	r := &Requirement{
		ID:    "req-1",
		RunID: "run-1",
		Action: Action{
			Tool: "delete_file",
			Args: map[string]any{"path": "/tmp/x", "recursive": false},
		},
		Status:    StatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.Put(ctx, r))

	got, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.ID)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "delete_file", got.Action.Tool)
	assert.Equal(t, "/tmp/x", got.Action.Args["path"])
	assert.Equal(t, StatusPending, got.Status)
	assert.True(t, got.DecidedAt.IsZero())
	assert.True(t, got.ResolvedAt.IsZero())

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// Duplicate IDs are refused.
	assert.Error(t, store.Put(ctx, r))
}

// TestSQLStore_Transition verifies the guarded status update and its
// conflict behavior
func TestSQLStore_Transition(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	r := &Requirement{
		ID:        "req-1",
		RunID:     "run-1",
		Action:    Action{Tool: "send_email"},
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Put(ctx, r))

	decided := time.Now().UTC().Truncate(time.Second)
	got, err := store.Transition(ctx, "req-1", StatusPending, StatusApproved, func(req *Requirement) {
		req.DecidedAt = decided
	})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.False(t, got.DecidedAt.IsZero())

	// A second transition from pending must conflict and report the
	// current state.
	cur, err := store.Transition(ctx, "req-1", StatusPending, StatusRejected, nil)
	assert.ErrorIs(t, err, ErrStatusConflict)
	require.NotNil(t, cur)
	assert.Equal(t, StatusApproved, cur.Status)

	// Resolution stores the handler output.
	got, err = store.Transition(ctx, "req-1", StatusApproved, StatusExecuted, func(req *Requirement) {
		req.Value = map[string]any{"sent": true}
		req.ResolvedAt = time.Now().UTC()
	})
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, got.Status)
	assert.Equal(t, true, got.Value["sent"])

	persisted, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, persisted.Status)
	assert.Equal(t, true, persisted.Value["sent"])
	assert.False(t, persisted.ResolvedAt.IsZero())
}

// TestSQLStore_ListPending verifies filtering and creation-time ordering
func TestSQLStore_ListPending(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i, spec := range []struct {
		id, run string
		status  Status
	}{
		{"req-b", "run-1", StatusPending},
		{"req-a", "run-1", StatusPending},
		{"req-c", "run-2", StatusPending},
		{"req-d", "run-1", StatusExecuted},
	} {
		require.NoError(t, store.Put(ctx, &Requirement{
			ID:        spec.id,
			RunID:     spec.run,
			Action:    Action{Tool: "send_email"},
			Status:    spec.status,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	pending, err := store.ListPending(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "req-b", pending[0].ID)
	assert.Equal(t, "req-a", pending[1].ID)

	all, err := store.ListPending(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// TestSQLStore_ServiceIntegration runs the full approval lifecycle against
// the SQL-backed store
func TestSQLStore_ServiceIntegration(t *testing.T) {
	store := newSQLiteStore(t)
	ct := &countingTool{name: "place_order", gated: true}
	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(ct))
	svc := NewService(reg, store)

	inv, err := svc.Invoke(context.Background(), "run-1", "place_order",
		map[string]any{"symbol": "NVDA"})
	require.NoError(t, err)
	require.True(t, inv.Suspended())
	id := inv.Requirement.ID

	require.NoError(t, svc.Approve(context.Background(), id))
	res, err := svc.Resume(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, res.Status)

	_, err = svc.Resume(context.Background(), id)
	assert.ErrorIs(t, err, ErrResolved)
	assert.Equal(t, int64(1), ct.calls.Load())
}
