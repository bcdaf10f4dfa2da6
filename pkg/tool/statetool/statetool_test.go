package statetool_test

import (
	"context"
	"strings"
	"testing"

	"github.com/reins-ai/reins/pkg/tool"
	"github.com/reins-ai/reins/pkg/tool/statetool"
)

func testContext(state tool.State) tool.Context {
	return tool.NewContext(context.Background(), tool.ContextOptions{
		CallID: "test-call",
		RunID:  "test-run",
		State:  state,
	})
}

// TestAddToWatchlist covers normalization, accumulation, and the
// duplicate message
func TestAddToWatchlist(t *testing.T) {
	add, err := statetool.NewAddToWatchlist()
	if err != nil {
		t.Fatalf("NewAddToWatchlist() error = %v", err)
	}

	state := tool.NewMemoryState(nil)
	ctx := testContext(state)

	out, err := add.Call(ctx, map[string]any{"ticker": " nvda "})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if msg := out["message"].(string); !strings.Contains(msg, "Added NVDA to watchlist") {
		t.Errorf("message = %q, want added confirmation", msg)
	}

	if _, err := add.Call(ctx, map[string]any{"ticker": "AAPL"}); err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	out, err = add.Call(ctx, map[string]any{"ticker": "nvda"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if msg := out["message"].(string); msg != "NVDA is already on your watchlist" {
		t.Errorf("message = %q, want duplicate notice", msg)
	}

	got := statetool.Watchlist(state)
	want := []string{"NVDA", "AAPL"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("watchlist = %v, want %v", got, want)
	}
}

// TestRemoveFromWatchlist covers the missing-ticker notice and both
// removal messages
func TestRemoveFromWatchlist(t *testing.T) {
	remove, err := statetool.NewRemoveFromWatchlist()
	if err != nil {
		t.Fatalf("NewRemoveFromWatchlist() error = %v", err)
	}

	state := tool.NewMemoryState(map[string]any{
		statetool.WatchlistKey: []string{"NVDA", "AMD"},
	})
	ctx := testContext(state)

	out, err := remove.Call(ctx, map[string]any{"ticker": "TSLA"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if msg := out["message"].(string); msg != "TSLA is not on your watchlist" {
		t.Errorf("message = %q, want not-on-watchlist notice", msg)
	}

	out, err = remove.Call(ctx, map[string]any{"ticker": "amd"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if msg := out["message"].(string); msg != "Removed AMD. Remaining watchlist: NVDA" {
		t.Errorf("message = %q", msg)
	}

	out, err = remove.Call(ctx, map[string]any{"ticker": "NVDA"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if msg := out["message"].(string); msg != "Removed NVDA. Watchlist is now empty." {
		t.Errorf("message = %q", msg)
	}
}

// TestViewWatchlist covers the empty and populated renderings
func TestViewWatchlist(t *testing.T) {
	view, err := statetool.NewViewWatchlist()
	if err != nil {
		t.Fatalf("NewViewWatchlist() error = %v", err)
	}

	state := tool.NewMemoryState(nil)
	out, err := view.Call(testContext(state), nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if msg := out["message"].(string); msg != "Your watchlist is empty." {
		t.Errorf("message = %q", msg)
	}

	if err := state.Set(statetool.WatchlistKey, []string{"NVDA", "AAPL"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	out, err = view.Call(testContext(state), nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if msg := out["message"].(string); msg != "Your watchlist: NVDA, AAPL" {
		t.Errorf("message = %q", msg)
	}
}

// TestWatchlist_JSONRoundTripShape accepts []any the way persisted
// state comes back from a SQL store
func TestWatchlist_JSONRoundTripShape(t *testing.T) {
	state := tool.NewMemoryState(map[string]any{
		statetool.WatchlistKey: []any{"NVDA", "AAPL"},
	})

	got := statetool.Watchlist(state)
	if len(got) != 2 || got[0] != "NVDA" || got[1] != "AAPL" {
		t.Errorf("Watchlist() = %v, want [NVDA AAPL]", got)
	}
}

// TestAddToWatchlist_EmptyTicker rejects blank input
func TestAddToWatchlist_EmptyTicker(t *testing.T) {
	add, err := statetool.NewAddToWatchlist()
	if err != nil {
		t.Fatalf("NewAddToWatchlist() error = %v", err)
	}

	if _, err := add.Call(testContext(tool.NewMemoryState(nil)), map[string]any{"ticker": "   "}); err == nil {
		t.Error("Call() with blank ticker should fail")
	}
}
