package memory

import (
	"context"
	"iter"
	"strings"
	"testing"

	"github.com/reins-ai/reins/pkg/model"
	"github.com/reins-ai/reins/pkg/tool"
)

func TestNewTokenCounter(t *testing.T) {
	tests := []struct {
		name  string
		model string
	}{
		{"GPT-4o model", "gpt-4o"},
		{"GPT-4 model", "gpt-4"},
		{"Gemini model (uses fallback)", "gemini-2.0-flash"},
		{"Unknown model (uses fallback)", "llama3.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter, err := NewTokenCounter(tt.model)
			if err != nil {
				t.Fatalf("NewTokenCounter() error = %v", err)
			}
			if counter == nil {
				t.Fatal("NewTokenCounter() returned nil counter")
			}
			if counter.Model() != tt.model {
				t.Errorf("Model() = %v, want %v", counter.Model(), tt.model)
			}
		})
	}
}

func TestTokenCounter_Count(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4o")
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	tests := []struct {
		name      string
		text      string
		minTokens int
		maxTokens int
	}{
		{"empty string", "", 0, 0},
		{"simple sentence", "Hello, world!", 3, 5},
		{"longer text", "This is a longer sentence with more words to count tokens accurately.", 12, 18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := counter.Count(tt.text)
			if got < tt.minTokens || got > tt.maxTokens {
				t.Errorf("Count() = %d, want between %d and %d", got, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestTokenCounter_CountMessage_IncludesToolPayloads(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4o")
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	plain := model.NewAssistantMessage("checking")
	withCall := model.NewAssistantMessage("checking")
	withCall.ToolCalls = append(withCall.ToolCalls, tool.Call{
		ID:   "call_1",
		Name: "get_stock_price",
		Args: map[string]any{"ticker": "NVDA"},
	})

	if counter.CountMessage(withCall) <= counter.CountMessage(plain) {
		t.Error("CountMessage() should charge for tool call payloads")
	}
}

// sixMessages returns user messages with 40-char bodies, so the
// estimation path costs 14 tokens each.
func sixMessages() []*model.Message {
	body := strings.Repeat("0123456789", 4)
	msgs := make([]*model.Message, 0, 6)
	for i := 0; i < 6; i++ {
		msgs = append(msgs, model.NewUserMessage(body))
	}
	return msgs
}

func TestWindow_Split(t *testing.T) {
	msgs := sixMessages()

	// Budget fits exactly two messages: 3 priming + 2*14 = 31.
	w := NewWindow(Config{MaxTokens: 31, PreserveRecent: 1})
	overflow, recent := w.Split(msgs)
	if len(overflow) != 4 || len(recent) != 2 {
		t.Fatalf("Split() = %d overflow, %d recent, want 4 and 2", len(overflow), len(recent))
	}
	if recent[1] != msgs[5] || recent[0] != msgs[4] {
		t.Error("Split() should keep the most recent messages")
	}
	if overflow[0] != msgs[0] {
		t.Error("Split() overflow should start at the oldest message")
	}
}

func TestWindow_PreserveRecentOverridesBudget(t *testing.T) {
	msgs := sixMessages()

	w := NewWindow(Config{MaxTokens: 5, PreserveRecent: 3})
	overflow, recent := w.Split(msgs)
	if len(recent) != 3 {
		t.Errorf("Split() kept %d messages, want 3 despite budget", len(recent))
	}
	if len(overflow) != 3 {
		t.Errorf("Split() overflow = %d, want 3", len(overflow))
	}
}

func TestWindow_AllFit(t *testing.T) {
	msgs := sixMessages()

	w := NewWindow(Config{MaxTokens: 100000})
	overflow, recent := w.Split(msgs)
	if overflow != nil {
		t.Errorf("Split() overflow = %v, want nil", overflow)
	}
	if len(recent) != len(msgs) {
		t.Errorf("Split() recent = %d, want all %d", len(recent), len(msgs))
	}

	if got := w.Budget(); got != 100000 {
		t.Errorf("Budget() = %d, want 100000", got)
	}
}

func TestWindow_Defaults(t *testing.T) {
	w := NewWindow(Config{})
	if w.Budget() != DefaultMaxTokens {
		t.Errorf("Budget() = %d, want %d", w.Budget(), DefaultMaxTokens)
	}
	if w.preserveRecent != DefaultPreserveRecent {
		t.Errorf("preserveRecent = %d, want %d", w.preserveRecent, DefaultPreserveRecent)
	}
}

func TestCompose(t *testing.T) {
	window := []*model.Message{model.NewUserMessage("latest question")}

	if got := Compose("", window); len(got) != 1 {
		t.Errorf("Compose() without summary = %d messages, want 1", len(got))
	}

	got := Compose("user likes AI stocks", window)
	if len(got) != 2 {
		t.Fatalf("Compose() with summary = %d messages, want 2", len(got))
	}
	if got[0].Role != model.RoleSystem {
		t.Errorf("Compose() first role = %v, want system", got[0].Role)
	}
	if !strings.Contains(got[0].Content, "user likes AI stocks") {
		t.Errorf("Compose() summary message = %q", got[0].Content)
	}
}

// scriptedLLM yields a fixed response and records requests.
type scriptedLLM struct {
	response string
	err      error
	requests []*model.Request
}

func (s *scriptedLLM) Name() string             { return "scripted" }
func (s *scriptedLLM) Provider() model.Provider { return model.ProviderUnknown }
func (s *scriptedLLM) Close() error             { return nil }

func (s *scriptedLLM) Generate(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		s.requests = append(s.requests, req)
		if s.err != nil {
			yield(nil, s.err)
			return
		}
		yield(&model.Response{Content: s.response, TurnComplete: true}, nil)
	}
}

func TestSummarizer_FoldsOverflowIntoSummary(t *testing.T) {
	llm := &scriptedLLM{response: "  User asked about NVDA and got a price. "}
	s, err := NewSummarizer(SummarizerConfig{LLM: llm})
	if err != nil {
		t.Fatalf("NewSummarizer() error = %v", err)
	}

	overflow := []*model.Message{
		model.NewUserMessage("what is NVDA trading at?"),
		model.NewAssistantMessage("NVDA is at $900."),
	}

	summary, err := s.Summarize(context.Background(), "user likes AI stocks", overflow)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != "User asked about NVDA and got a price." {
		t.Errorf("Summarize() = %q, want trimmed response", summary)
	}

	if len(llm.requests) != 1 {
		t.Fatalf("LLM called %d times, want 1", len(llm.requests))
	}
	prompt := llm.requests[0].Messages[0].Content
	for _, want := range []string{
		"[summary so far]: user likes AI stocks",
		"[user]: what is NVDA trading at?",
		"[assistant]: NVDA is at $900.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSummarizer_NothingNewKeepsPrevious(t *testing.T) {
	llm := &scriptedLLM{response: "should not be called"}
	s, err := NewSummarizer(SummarizerConfig{LLM: llm})
	if err != nil {
		t.Fatalf("NewSummarizer() error = %v", err)
	}

	summary, err := s.Summarize(context.Background(), "existing summary", nil)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != "existing summary" {
		t.Errorf("Summarize() = %q, want previous summary", summary)
	}
	if len(llm.requests) != 0 {
		t.Error("LLM should not be called with no overflow")
	}
}

func TestSummarizer_RequiresLLM(t *testing.T) {
	if _, err := NewSummarizer(SummarizerConfig{}); err == nil {
		t.Error("NewSummarizer() without LLM should fail")
	}
}
