package instruction_test

import (
	"strings"
	"testing"

	"github.com/reins-ai/reins/pkg/instruction"
	"github.com/reins-ai/reins/pkg/tool"
)

func newState(data map[string]any) tool.State {
	return tool.NewMemoryState(data)
}

// TestInjectState covers placeholder resolution against session state
func TestInjectState(t *testing.T) {
	state := newState(map[string]any{
		"user_name":    "Ada",
		"watchlist":    []string{"NVDA", "AAPL"},
		"app:project":  "reins",
		"user:tz":      "UTC",
		"temp:scratch": "x",
		"count":        3,
	})

	tests := []struct {
		name     string
		template string
		want     string
		wantErr  bool
	}{
		{"plain text", "no placeholders here", "no placeholders here", false},
		{"simple variable", "Hello {user_name}.", "Hello Ada.", false},
		{"string slice joined", "Watchlist: {watchlist}", "Watchlist: NVDA, AAPL", false},
		{"prefixed keys", "{app:project} for {user:tz}", "reins for UTC", false},
		{"temp key", "scratch={temp:scratch}", "scratch=x", false},
		{"non-string value", "count is {count}", "count is 3", false},
		{"optional missing", "memo: {memo?}", "memo: ", false},
		{"required missing", "memo: {memo}", "", true},
		{"invalid name left alone", `{"json": true}`, `{"json": true}`, false},
		{"empty template", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := instruction.InjectState(state, tt.template)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("InjectState: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// TestInjectState_AnySlice covers list state that came back from JSON
func TestInjectState_AnySlice(t *testing.T) {
	state := newState(map[string]any{"watchlist": []any{"NVDA", "TSLA"}})
	got, err := instruction.InjectState(state, "{watchlist}")
	if err != nil {
		t.Fatalf("InjectState: %v", err)
	}
	if got != "NVDA, TSLA" {
		t.Errorf("got %q, want NVDA, TSLA", got)
	}
}

// TestInjectState_NilState checks optional placeholders survive a nil state
func TestInjectState_NilState(t *testing.T) {
	if _, err := instruction.InjectState(nil, "{required}"); err == nil {
		t.Error("required placeholder with nil state should fail")
	}
	got, err := instruction.InjectState(nil, "{optional?}")
	if err != nil {
		t.Fatalf("InjectState: %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

// TestListPlaceholders checks discovery and deduplication
func TestListPlaceholders(t *testing.T) {
	tmpl := "Hi {name}, your watchlist is {watchlist?}. Bye {name}."
	got := instruction.ListPlaceholders(tmpl)
	want := []string{"name", "watchlist"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("placeholder %d = %q, want %q", i, got[i], want[i])
		}
	}

	if instruction.HasPlaceholders("plain") {
		t.Error("plain text should have no placeholders")
	}
	if !instruction.HasPlaceholders(tmpl) {
		t.Error("template should report placeholders")
	}
}

// TestInjectState_KeepsSurroundingText checks proper splicing around matches
func TestInjectState_KeepsSurroundingText(t *testing.T) {
	state := newState(map[string]any{"a": "1", "b": "2"})
	got, err := instruction.InjectState(state, "start {a} middle {b} end")
	if err != nil {
		t.Fatalf("InjectState: %v", err)
	}
	if !strings.HasPrefix(got, "start 1") || !strings.HasSuffix(got, "2 end") {
		t.Errorf("splicing wrong: %q", got)
	}
}
