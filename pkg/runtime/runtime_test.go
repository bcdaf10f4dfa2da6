package runtime

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reins-ai/reins/pkg/config"
	"github.com/reins-ai/reins/pkg/observability"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		LLMs: map[string]*config.LLMConfig{
			"default": {Provider: config.LLMProviderGemini, APIKey: "test-key"},
		},
		Agents: map[string]*config.AgentConfig{
			"assistant": {Description: "test assistant"},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func TestNewWithConfig(t *testing.T) {
	rt, err := NewWithConfig(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	defer rt.Close()

	ag, ok := rt.Agent("assistant")
	if !ok {
		t.Fatal("agent \"assistant\" not found")
	}
	if ag.Name() != "assistant" {
		t.Errorf("agent name = %q, want %q", ag.Name(), "assistant")
	}
	if ag.Description() != "test assistant" {
		t.Errorf("agent description = %q, want %q", ag.Description(), "test assistant")
	}

	if rt.Runs() == nil {
		t.Error("Runs() returned nil")
	}
	if rt.Approvals() == nil {
		t.Error("Approvals() returned nil")
	}
	if rt.Sessions() == nil {
		t.Error("Sessions() returned nil")
	}
	if rt.Config() == nil {
		t.Error("Config() returned nil")
	}
}

func TestNewWithConfig_NilConfig(t *testing.T) {
	if _, err := NewWithConfig(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNewWithConfig_NoAgents(t *testing.T) {
	cfg := testConfig()
	cfg.Agents = map[string]*config.AgentConfig{"ghost": nil}

	_, err := NewWithConfig(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error when no agents can be built")
	}
	if !strings.Contains(err.Error(), "no agents configured") {
		t.Errorf("error = %v, want mention of no agents configured", err)
	}
}

func TestNewWithConfig_PartialFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Agents["broken"] = &config.AgentConfig{Name: "broken", LLM: "missing"}

	rt, err := NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v, want partial success", err)
	}
	defer rt.Close()

	if _, ok := rt.Agent("assistant"); !ok {
		t.Error("healthy agent missing after partial failure")
	}
	if _, ok := rt.Agent("broken"); ok {
		t.Error("broken agent should not be registered")
	}
	if got := len(rt.Agents()); got != 1 {
		t.Errorf("len(Agents()) = %d, want 1", got)
	}
}

func TestNewWithConfig_AllAgentsFail(t *testing.T) {
	cfg := testConfig()
	cfg.Agents = map[string]*config.AgentConfig{
		"broken": {Name: "broken", LLM: "missing"},
	}

	_, err := NewWithConfig(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error when every agent fails")
	}
	if !strings.Contains(err.Error(), "failed to initialize any agents") {
		t.Errorf("error = %v, want mention of failed initialization", err)
	}
}

func TestNew_WithConfigFile(t *testing.T) {
	content := `
name: "Test Deployment"
llms:
  default:
    provider: gemini
    api_key: test-key
agents:
  helper:
    description: "File-configured helper"
`
	path := filepath.Join(t.TempDir(), "reins.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rt, err := New(context.Background(), Options{ConfigFile: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer rt.Close()

	if rt.Config().Name != "Test Deployment" {
		t.Errorf("config name = %q, want %q", rt.Config().Name, "Test Deployment")
	}
	if _, ok := rt.Agent("helper"); !ok {
		t.Error("agent \"helper\" not found")
	}
}

func TestNew_ZeroConfig(t *testing.T) {
	rt, err := New(context.Background(), Options{
		ConfigFile: filepath.Join(t.TempDir(), "nonexistent.yaml"),
		Provider:   "gemini",
		APIKey:     "zero-key",
		Model:      "gemini-2.0-flash",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer rt.Close()

	llm, ok := rt.Config().LLMs["default"]
	if !ok {
		t.Fatal("default llm not configured")
	}
	if llm.APIKey != "zero-key" {
		t.Errorf("api key = %q, want %q", llm.APIKey, "zero-key")
	}
	if llm.Model != "gemini-2.0-flash" {
		t.Errorf("model = %q, want %q", llm.Model, "gemini-2.0-flash")
	}

	// Zero config seeds a single default agent.
	if _, ok := rt.Agent("assistant"); !ok {
		t.Error("default agent not created")
	}
}

func TestNewWithConfig_SQLStores(t *testing.T) {
	cfg := testConfig()
	cfg.Databases = map[string]*config.DatabaseConfig{
		"main": {Driver: "sqlite", Database: filepath.Join(t.TempDir(), "reins.db")},
	}
	cfg.Server.Sessions = &config.StorageConfig{Backend: config.StorageBackendSQL, Database: "main"}
	cfg.Server.Runs = &config.StorageConfig{Backend: config.StorageBackendSQL, Database: "main"}
	cfg.Server.Approvals = &config.StorageConfig{Backend: config.StorageBackendSQL, Database: "main"}
	cfg.SetDefaults()

	rt, err := NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	defer rt.Close()

	// The stores share one pooled connection; a run written through the
	// shared service must be visible to the agent's service.
	r, err := rt.Runs().Create(context.Background(), "sess-1", "assistant")
	if err != nil {
		t.Fatalf("Create run: %v", err)
	}
	ag, _ := rt.Agent("assistant")
	got, err := ag.Runs().Get(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Get run through agent store: %v", err)
	}
	if got.ID != r.ID {
		t.Errorf("run ID = %q, want %q", got.ID, r.ID)
	}
}

func TestNewWithConfig_SQLStoreMissingDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Runs = &config.StorageConfig{Backend: config.StorageBackendSQL, Database: "nope"}

	_, err := NewWithConfig(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for unknown database reference")
	}
	if !strings.Contains(err.Error(), `database "nope" not found`) {
		t.Errorf("error = %v, want mention of missing database", err)
	}
}

func TestNewWithConfig_ToolsAndGuardrails(t *testing.T) {
	cfg := testConfig()
	cfg.Tools = map[string]*config.ToolConfig{
		"watchlist": {Type: config.ToolTypeBuiltin, Handler: "watchlist", RequireApproval: config.BoolPtr(true)},
	}
	cfg.Guardrails = map[string]*config.GuardrailConfig{
		"no_pii": {Type: config.GuardrailPII},
	}
	cfg.Agents["assistant"].Tools = []string{"watchlist"}
	cfg.Agents["assistant"].Guardrails = []string{"no_pii"}
	cfg.SetDefaults()

	rt, err := NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	defer rt.Close()

	ag, _ := rt.Agent("assistant")
	for _, name := range []string{"add_to_watchlist", "remove_from_watchlist", "view_watchlist"} {
		callable, err := ag.Registry().Callable(name)
		if err != nil {
			t.Fatalf("tool %q not registered: %v", name, err)
		}
		if !callable.RequiresApproval() {
			t.Errorf("tool %q should require approval after override", name)
		}
	}
}

func TestNewWithConfig_DisabledToolSkipped(t *testing.T) {
	cfg := testConfig()
	cfg.Tools = map[string]*config.ToolConfig{
		"watchlist": {Type: config.ToolTypeBuiltin, Handler: "watchlist", Enabled: config.BoolPtr(false)},
	}
	cfg.Agents["assistant"].Tools = []string{"watchlist"}
	cfg.SetDefaults()

	rt, err := NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	defer rt.Close()

	ag, _ := rt.Agent("assistant")
	if _, err := ag.Registry().Get("add_to_watchlist"); err == nil {
		t.Error("disabled tool should not be registered")
	}
}

func TestNewWithConfig_AgentTools(t *testing.T) {
	cfg := testConfig()
	cfg.Agents["researcher"] = &config.AgentConfig{Description: "looks things up"}
	cfg.Agents["assistant"].AgentTools = []string{"researcher"}
	cfg.SetDefaults()

	rt, err := NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	defer rt.Close()

	parent, _ := rt.Agent("assistant")
	if _, err := parent.Registry().Get("researcher"); err != nil {
		t.Errorf("sub-agent not registered as tool: %v", err)
	}

	// Delegation is one-way: the sub-agent must not see the parent.
	sub, _ := rt.Agent("researcher")
	if _, err := sub.Registry().Get("assistant"); err == nil {
		t.Error("parent should not be registered on the sub-agent")
	}
}

func TestNewWithConfig_Observability(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Observability = &observability.Config{
		Metrics: observability.MetricsConfig{Enabled: true},
	}

	rt, err := NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	defer rt.Close()

	if rt.Observability() == nil {
		t.Error("Observability() returned nil with metrics enabled")
	}
}

func TestNewWithConfig_NoObservability(t *testing.T) {
	rt, err := NewWithConfig(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	defer rt.Close()

	if rt.Observability() != nil {
		t.Error("Observability() should be nil when not configured")
	}
}
