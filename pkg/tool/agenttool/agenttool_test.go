package agenttool_test

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"testing"

	"github.com/reins-ai/reins/pkg/agent"
	"github.com/reins-ai/reins/pkg/model"
	"github.com/reins-ai/reins/pkg/session"
	"github.com/reins-ai/reins/pkg/tool"
	"github.com/reins-ai/reins/pkg/tool/agenttool"
)

// scriptedLLM pops canned responses in order.
type scriptedLLM struct {
	responses []*model.Response
}

func (s *scriptedLLM) Name() string             { return "scripted" }
func (s *scriptedLLM) Provider() model.Provider { return model.Provider("fake") }
func (s *scriptedLLM) Close() error             { return nil }

func (s *scriptedLLM) Generate(_ context.Context, _ *model.Request, _ bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		if len(s.responses) == 0 {
			yield(nil, fmt.Errorf("no scripted response left"))
			return
		}
		resp := s.responses[0]
		s.responses = s.responses[1:]
		yield(resp, nil)
	}
}

type gatedTool struct{}

func (gatedTool) Name() string           { return "place_order" }
func (gatedTool) Description() string    { return "places an order" }
func (gatedTool) RequiresApproval() bool { return true }
func (gatedTool) Schema() map[string]any { return nil }

func (gatedTool) Call(tool.Context, map[string]any) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

func newSubAgent(t *testing.T, llm *scriptedLLM, cfg agent.Config) *agent.Agent {
	t.Helper()
	cfg.Name = "researcher"
	cfg.Description = "digs up background information"
	cfg.Model = llm
	ag, err := agent.New(cfg)
	if err != nil {
		t.Fatalf("New agent: %v", err)
	}
	return ag
}

func callerContext(state map[string]any) tool.Context {
	return tool.NewContext(context.Background(), tool.ContextOptions{
		CallID: "call-1",
		RunID:  "parent-run",
		State:  tool.NewMemoryState(state),
	})
}

func TestNew_RequiresAgent(t *testing.T) {
	if _, err := agenttool.New(nil, nil); err == nil {
		t.Fatal("New(nil) should fail")
	}
}

func TestAgentTool_NameAndSchema(t *testing.T) {
	ag := newSubAgent(t, &scriptedLLM{}, agent.Config{})
	at, err := agenttool.New(ag, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got, want := at.Name(), "researcher"; got != want {
		t.Errorf("Name = %q, want %q", got, want)
	}
	if at.RequiresApproval() {
		t.Error("agent tool should be ungated by default")
	}

	schema := at.Schema()
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no properties: %v", schema)
	}
	if _, ok := props["request"]; !ok {
		t.Error("schema should declare a request parameter")
	}
}

func TestAgentTool_Gated(t *testing.T) {
	ag := newSubAgent(t, &scriptedLLM{}, agent.Config{})
	at, err := agenttool.New(ag, &agenttool.Config{RequireApproval: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !at.RequiresApproval() {
		t.Error("RequiresApproval = false, want true")
	}
}

func TestAgentTool_DelegatesAndAnswers(t *testing.T) {
	llm := &scriptedLLM{responses: []*model.Response{
		{Content: "NVDA makes GPUs", TurnComplete: true},
	}}
	ag := newSubAgent(t, llm, agent.Config{})
	at, err := agenttool.New(ag, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := at.Call(callerContext(nil), map[string]any{"request": "what does NVDA do"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got, want := result["result"], "NVDA makes GPUs"; got != want {
		t.Errorf("result = %q, want %q", got, want)
	}
	if result["run_id"] == "" {
		t.Error("result should carry the sub-run ID")
	}
}

func TestAgentTool_MissingRequest(t *testing.T) {
	ag := newSubAgent(t, &scriptedLLM{}, agent.Config{})
	at, _ := agenttool.New(ag, nil)

	if _, err := at.Call(callerContext(nil), map[string]any{}); err == nil {
		t.Fatal("Call without request should fail")
	}
}

func TestAgentTool_CopiesSessionScopedState(t *testing.T) {
	llm := &scriptedLLM{responses: []*model.Response{
		{Content: "done", TurnComplete: true},
	}}
	ag := newSubAgent(t, llm, agent.Config{})
	at, _ := agenttool.New(ag, nil)

	caller := callerContext(map[string]any{
		"watchlist":  []string{"NVDA"},
		"app:theme":  "dark",
		"user:name":  "sam",
		"temp:draft": "x",
		"_internal":  "y",
	})
	result, err := at.Call(caller, map[string]any{"request": "check the watchlist"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	// The sub-run's session carries the session-scoped keys and nothing
	// else.
	runID, _ := result["run_id"].(string)
	r, err := ag.Runs().Get(context.Background(), runID)
	if err != nil {
		t.Fatalf("Get run: %v", err)
	}
	sess, err := ag.Sessions().Get(context.Background(), &session.GetRequest{
		AppName:   "researcher",
		UserID:    agent.DefaultUserID,
		SessionID: r.SessionID,
	})
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}

	got, err := sess.State.Get("watchlist")
	if err != nil {
		t.Fatalf("watchlist missing from sub-agent state: %v", err)
	}
	if !strings.Contains(fmt.Sprint(got), "NVDA") {
		t.Errorf("watchlist = %v, want NVDA", got)
	}
	for _, key := range []string{"app:theme", "user:name", "temp:draft", "_internal"} {
		if _, err := sess.State.Get(key); err == nil {
			t.Errorf("key %q leaked into the sub-agent session", key)
		}
	}
}

func TestAgentTool_SubRunPauseSurfaces(t *testing.T) {
	llm := &scriptedLLM{responses: []*model.Response{
		{ToolCalls: []tool.Call{{ID: "c1", Name: "place_order", Args: map[string]any{"qty": 1.0}}}},
	}}
	ag := newSubAgent(t, llm, agent.Config{Tools: []tool.Tool{gatedTool{}}})
	at, _ := agenttool.New(ag, nil)

	result, err := at.Call(callerContext(nil), map[string]any{"request": "buy one share"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got, want := result["status"], "input_required"; got != want {
		t.Fatalf("status = %v, want %v", got, want)
	}
	reqs, ok := result["requirements"].([]map[string]any)
	if !ok || len(reqs) != 1 {
		t.Fatalf("requirements = %v, want one entry", result["requirements"])
	}
	if got, want := reqs[0]["tool"], "place_order"; got != want {
		t.Errorf("requirement tool = %v, want %v", got, want)
	}
}
