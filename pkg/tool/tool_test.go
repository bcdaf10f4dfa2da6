package tool

import (
	"context"
	"testing"
)

// callableStub is a minimal CallableTool for wrapper tests
type callableStub struct {
	stubTool
	called bool
}

func (s *callableStub) Call(ctx Context, args map[string]any) (map[string]any, error) {
	s.called = true
	return map[string]any{"ok": true}, nil
}

func (s *callableStub) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func TestWithApproval(t *testing.T) {
	base := &callableStub{stubTool: stubTool{name: "send_email", approval: false}}

	gated := WithApproval(base, true)
	if !gated.RequiresApproval() {
		t.Error("WithApproval(t, true) should require approval")
	}
	if gated.Name() != "send_email" {
		t.Errorf("Name() = %q, want send_email", gated.Name())
	}
	if gated.Schema() == nil {
		t.Error("Schema() should pass through to the wrapped tool")
	}

	// Override in the other direction.
	trusted := WithApproval(&callableStub{stubTool: stubTool{name: "read_file", approval: true}}, false)
	if trusted.RequiresApproval() {
		t.Error("WithApproval(t, false) should exempt the tool")
	}

	// Calls reach the wrapped implementation.
	res, err := gated.Call(NewContext(context.Background(), ContextOptions{CallID: "c1"}), nil)
	if err != nil {
		t.Fatalf("Call() unexpected error: %v", err)
	}
	if res["ok"] != true {
		t.Errorf("Call() result = %v, want ok=true", res)
	}
	if !base.called {
		t.Error("Call() should delegate to the wrapped tool")
	}
}

func TestToDefinition_IncludesSchema(t *testing.T) {
	def := ToDefinition(&callableStub{stubTool: stubTool{name: "send_email"}})
	if def.Name != "send_email" {
		t.Errorf("Name = %q, want send_email", def.Name)
	}
	if def.Parameters == nil {
		t.Error("Parameters should carry the tool schema")
	}

	// Plain tools carry no parameters.
	bare := ToDefinition(&stubTool{name: "noop"})
	if bare.Parameters != nil {
		t.Error("Parameters should be nil for non-callable tools")
	}
}
