package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/reins-ai/reins/pkg/agent"
	"github.com/reins-ai/reins/pkg/approval"
	"github.com/reins-ai/reins/pkg/config"
	"github.com/reins-ai/reins/pkg/embedder"
	"github.com/reins-ai/reins/pkg/guardrail"
	"github.com/reins-ai/reins/pkg/knowledge"
	"github.com/reins-ai/reins/pkg/memory"
	"github.com/reins-ai/reins/pkg/model"
	"github.com/reins-ai/reins/pkg/model/gemini"
	"github.com/reins-ai/reins/pkg/model/ollama"
	"github.com/reins-ai/reins/pkg/run"
	"github.com/reins-ai/reins/pkg/session"
	"github.com/reins-ai/reins/pkg/tool"
	"github.com/reins-ai/reins/pkg/tool/filetool"
	"github.com/reins-ai/reins/pkg/tool/mcptoolset"
	"github.com/reins-ai/reins/pkg/tool/statetool"
	"github.com/reins-ai/reins/pkg/vector"
)

// buildLLM creates an LLM instance from its configuration.
func buildLLM(cfg *config.LLMConfig) (model.LLM, error) {
	switch cfg.Provider {
	case config.LLMProviderGemini:
		gcfg := gemini.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		}
		if cfg.Temperature != nil {
			gcfg.Temperature = *cfg.Temperature
		}
		if cfg.TopP != nil {
			gcfg.TopP = *cfg.TopP
		}
		if cfg.TopK != nil {
			gcfg.TopK = *cfg.TopK
		}
		return gemini.New(gcfg)

	case config.LLMProviderOllama:
		ocfg := ollama.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			TopK:        cfg.TopK,
			NumCtx:      cfg.NumCtx,
			Seed:        cfg.Seed,
			KeepAlive:   cfg.KeepAlive,
			MaxRetries:  cfg.MaxRetries,
		}
		if cfg.MaxTokens > 0 {
			numPredict := cfg.MaxTokens
			ocfg.NumPredict = &numPredict
		}
		if cfg.Timeout > 0 {
			ocfg.Timeout = time.Duration(cfg.Timeout) * time.Second
		}
		return ollama.New(ocfg)

	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// buildStores creates the session, run, and approval stores shared by
// every agent of the deployment.
func (rt *Runtime) buildStores() error {
	srv := &rt.cfg.Server

	sessions, err := rt.buildSessionStore(srv.Sessions)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}
	rt.sessions = sessions

	runs, err := rt.buildRunStore(srv.Runs)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	rt.runs = runs

	approvals, err := rt.buildApprovalStore(srv.Approvals)
	if err != nil {
		return fmt.Errorf("failed to create approval store: %w", err)
	}
	rt.approvals = approvals

	return nil
}

func (rt *Runtime) buildSessionStore(cfg *config.StorageConfig) (session.Service, error) {
	if !cfg.IsSQL() {
		return session.NewInMemoryService(), nil
	}
	db, dialect, err := rt.openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	return session.NewSQLService(db, dialect)
}

func (rt *Runtime) buildRunStore(cfg *config.StorageConfig) (run.Service, error) {
	if !cfg.IsSQL() {
		return run.NewInMemoryService(), nil
	}
	db, dialect, err := rt.openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	return run.NewSQLService(db, dialect)
}

func (rt *Runtime) buildApprovalStore(cfg *config.StorageConfig) (approval.Store, error) {
	if !cfg.IsSQL() {
		return approval.NewMemoryStore(), nil
	}
	db, dialect, err := rt.openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	return approval.NewSQLStore(db, dialect)
}

// openDatabase resolves a database reference through the shared pool, so
// stores pointing at the same database reuse one connection.
func (rt *Runtime) openDatabase(name string) (*sql.DB, string, error) {
	dbCfg, ok := rt.cfg.Databases[name]
	if !ok || dbCfg == nil {
		return nil, "", fmt.Errorf("database %q not found", name)
	}
	return rt.dbPool.Get(dbCfg)
}

// buildProviders creates the LLMs, embedders, vector stores, and
// knowledge bases, in that order since each layer feeds the next.
func (rt *Runtime) buildProviders(ctx context.Context) error {
	for name, llmCfg := range rt.cfg.LLMs {
		if llmCfg == nil {
			continue
		}
		llm, err := buildLLM(llmCfg)
		if err != nil {
			return fmt.Errorf("failed to create llm %q: %w", name, err)
		}
		rt.llms[name] = llm
	}

	for name, embCfg := range rt.cfg.Embedders {
		if embCfg == nil {
			continue
		}
		emb, err := embedder.NewFromConfig(embCfg)
		if err != nil {
			return fmt.Errorf("failed to create embedder %q: %w", name, err)
		}
		rt.embedders[name] = emb
	}

	for name, vsCfg := range rt.cfg.VectorStores {
		if vsCfg == nil {
			continue
		}
		provider, err := vector.NewProvider(vsCfg)
		if err != nil {
			return fmt.Errorf("failed to create vector store %q: %w", name, err)
		}
		if err := rt.vectors.Register(name, provider); err != nil {
			return fmt.Errorf("failed to register vector store %q: %w", name, err)
		}
	}

	for name, kbCfg := range rt.cfg.Knowledge {
		if kbCfg == nil {
			continue
		}
		kb, err := rt.buildKnowledge(ctx, name, kbCfg)
		if err != nil {
			return fmt.Errorf("failed to create knowledge base %q: %w", name, err)
		}
		rt.knowledge[name] = kb
	}

	return nil
}

// buildKnowledge creates a knowledge base and indexes its configured
// sources. Indexing happens at startup so agents never search an empty
// collection.
func (rt *Runtime) buildKnowledge(ctx context.Context, name string, cfg *config.KnowledgeConfig) (*knowledge.Base, error) {
	emb, ok := rt.embedders[cfg.Embedder]
	if !ok {
		return nil, fmt.Errorf("embedder %q not found", cfg.Embedder)
	}
	provider, ok := rt.vectors.Get(cfg.VectorStore)
	if !ok {
		return nil, fmt.Errorf("vector store %q not found", cfg.VectorStore)
	}

	kb, err := knowledge.New(knowledge.Config{
		Name:       name,
		Collection: cfg.Collection,
		MaxResults: cfg.MaxResults,
		Chunking: knowledge.ChunkConfig{
			Size:    cfg.Chunking.Size,
			Overlap: cfg.Chunking.Overlap,
		},
		Embedder: emb,
		Vector:   provider,
	})
	if err != nil {
		return nil, err
	}

	for _, source := range cfg.Sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", source, err)
		}
		if info.IsDir() {
			err = kb.AddDir(ctx, source, nil)
		} else {
			err = kb.AddFile(ctx, source, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to index source %q: %w", source, err)
		}
		slog.Info("Indexed knowledge source", "knowledge", name, "source", source)
	}

	return kb, nil
}

// buildTools creates the configured tools. Builtin entries resolve to
// static tool lists, MCP entries to lazy toolsets that are contacted on
// first use.
func (rt *Runtime) buildTools() (map[string][]tool.Tool, map[string]tool.Toolset, error) {
	tools := make(map[string][]tool.Tool)
	toolsets := make(map[string]tool.Toolset)

	for name, toolCfg := range rt.cfg.Tools {
		if toolCfg == nil || !toolCfg.IsEnabled() {
			continue
		}

		switch toolCfg.Type {
		case config.ToolTypeMCP:
			ts, err := mcptoolset.New(mcptoolset.Config{
				Name:               name,
				URL:                toolCfg.URL,
				Transport:          toolCfg.Transport,
				Command:            toolCfg.Command,
				Args:               toolCfg.Args,
				Env:                toolCfg.Env,
				Filter:             toolCfg.Filter,
				Unattended:         toolCfg.Unattended,
				MaxRetries:         toolCfg.MaxRetries,
				SSETimeout:         toolCfg.SSETimeout,
				InsecureSkipVerify: toolCfg.InsecureSkipVerify,
				CACertificate:      toolCfg.CACertificate,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create tool %q: %w", name, err)
			}
			toolsets[name] = ts

		case config.ToolTypeBuiltin:
			built, err := buildBuiltinTools(toolCfg)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create tool %q: %w", name, err)
			}
			tools[name] = built

		default:
			return nil, nil, fmt.Errorf("tool %q: unknown type %q", name, toolCfg.Type)
		}
	}

	return tools, toolsets, nil
}

// buildBuiltinTools resolves a builtin handler name to its tools and
// applies the approval override when one is configured.
func buildBuiltinTools(cfg *config.ToolConfig) ([]tool.Tool, error) {
	var built []tool.CallableTool

	switch cfg.Handler {
	case "watchlist":
		ts, err := statetool.NewWatchlistTools()
		if err != nil {
			return nil, err
		}
		built = ts
	case "files":
		ts, err := filetool.NewFileTools(cfg.WorkingDir)
		if err != nil {
			return nil, err
		}
		built = ts
	default:
		return nil, fmt.Errorf("unknown builtin handler %q", cfg.Handler)
	}

	out := make([]tool.Tool, 0, len(built))
	for _, t := range built {
		if cfg.RequireApproval != nil {
			t = tool.WithApproval(t, *cfg.RequireApproval)
		}
		out = append(out, t)
	}
	return out, nil
}

// buildGuardrails creates the configured guardrails keyed by name.
func (rt *Runtime) buildGuardrails() (map[string]guardrail.Guardrail, error) {
	guardrails := make(map[string]guardrail.Guardrail)
	for name, gCfg := range rt.cfg.Guardrails {
		if gCfg == nil {
			continue
		}
		g, err := buildGuardrail(gCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create guardrail %q: %w", name, err)
		}
		guardrails[name] = g
	}
	return guardrails, nil
}

func buildGuardrail(cfg *config.GuardrailConfig) (guardrail.Guardrail, error) {
	switch cfg.Type {
	case config.GuardrailPII:
		return guardrail.NewPIIDetectionWithConfig(guardrail.PIIConfig{
			SSN:        config.BoolValue(cfg.SSN, true),
			CreditCard: config.BoolValue(cfg.CreditCard, true),
			Email:      config.BoolValue(cfg.Email, true),
			Phone:      config.BoolValue(cfg.Phone, true),
			Mask:       cfg.Mask,
		}), nil

	case config.GuardrailPromptInjection:
		if len(cfg.Patterns) > 0 {
			return guardrail.NewPromptInjectionWithPatterns(cfg.Patterns), nil
		}
		return guardrail.NewPromptInjection(), nil

	case config.GuardrailSpam:
		return guardrail.NewSpamDetectionWithLimits(cfg.MaxCapsRatio, cfg.MaxExclamations), nil

	default:
		return nil, fmt.Errorf("unknown guardrail type %q", cfg.Type)
	}
}

// buildAgent creates one agent against the runtime's shared stores.
func (rt *Runtime) buildAgent(cfg *config.AgentConfig, tools map[string][]tool.Tool, toolsets map[string]tool.Toolset, guardrails map[string]guardrail.Guardrail) (*agent.Agent, error) {
	llm, ok := rt.llms[cfg.LLM]
	if !ok {
		return nil, fmt.Errorf("llm %q not found", cfg.LLM)
	}

	agentCfg := agent.Config{
		Name:             cfg.Name,
		Description:      cfg.Description,
		Instruction:      cfg.Instruction,
		Model:            llm,
		Sessions:         rt.sessions,
		Runs:             rt.runs,
		ApprovalStore:    rt.approvals,
		KnowledgeResults: cfg.KnowledgeResults,
		OutputSchema:     cfg.OutputSchema,
		OutputKey:        cfg.OutputKey,
		SessionState:     cfg.State,
		MaxIterations:    cfg.MaxIterations,
	}

	for _, ref := range cfg.Tools {
		if ts, ok := toolsets[ref]; ok {
			agentCfg.Toolsets = append(agentCfg.Toolsets, ts)
			continue
		}
		if built, ok := tools[ref]; ok {
			agentCfg.Tools = append(agentCfg.Tools, built...)
			continue
		}
		// Present in config but not built: disabled. Dropping it keeps
		// a toggled-off tool from breaking every agent that lists it.
		if _, exists := rt.cfg.Tools[ref]; exists {
			slog.Debug("Skipping disabled tool", "agent", cfg.Name, "tool", ref)
			continue
		}
		return nil, fmt.Errorf("tool %q not found", ref)
	}

	for _, ref := range cfg.Guardrails {
		g, ok := guardrails[ref]
		if !ok {
			return nil, fmt.Errorf("guardrail %q not found", ref)
		}
		agentCfg.Guardrails = append(agentCfg.Guardrails, g)
	}

	if cfg.Knowledge != "" {
		kb, ok := rt.knowledge[cfg.Knowledge]
		if !ok {
			return nil, fmt.Errorf("knowledge base %q not found", cfg.Knowledge)
		}
		agentCfg.Knowledge = kb
	}

	if cfg.Memory != nil {
		agentCfg.Memory = memory.NewWindow(memory.Config{
			MaxTokens:      cfg.Memory.MaxTokens,
			PreserveRecent: cfg.Memory.PreserveRecent,
			Model:          cfg.Memory.Model,
		})
		if cfg.Memory.Strategy == "summary" {
			summarizer, err := memory.NewSummarizer(memory.SummarizerConfig{LLM: llm})
			if err != nil {
				return nil, fmt.Errorf("failed to create summarizer: %w", err)
			}
			agentCfg.Summarizer = summarizer
		}
	}

	return agent.New(agentCfg)
}
