package config

import "fmt"

// AgentConfig configures an agent.
//
// Example:
//
//	agents:
//	  assistant:
//	    description: "General purpose assistant"
//	    llm: default
//	    instruction: |
//	      You are a helpful assistant. Watchlist: {watchlist}
//	    tools: [watchlist]
//	    guardrails: [no_pii]
type AgentConfig struct {
	// Name is the display name. Defaults to the map key.
	Name string `yaml:"name,omitempty" json:"name,omitempty" mapstructure:"name"`

	// Description says what the agent is for. Surfaced in agent
	// listings and used as the tool description when the agent is
	// delegated to as a tool.
	Description string `yaml:"description,omitempty" json:"description,omitempty" mapstructure:"description"`

	// Instruction is the system prompt template. Placeholders such as
	// {watchlist} are re-rendered against session state on every model
	// call.
	Instruction string `yaml:"instruction,omitempty" json:"instruction,omitempty" mapstructure:"instruction"`

	// LLM references a configured LLM by name. Defaults to "default"
	// when an LLM with that name exists, otherwise the sole entry.
	LLM string `yaml:"llm,omitempty" json:"llm,omitempty" mapstructure:"llm"`

	// Tools lists tool names this agent can use (refs into tools).
	Tools []string `yaml:"tools,omitempty" json:"tools,omitempty" mapstructure:"tools"`

	// AgentTools lists agent names to expose as callable tools. The
	// parent keeps control and receives the sub-agent's answer as a
	// tool result.
	AgentTools []string `yaml:"agent_tools,omitempty" json:"agent_tools,omitempty" mapstructure:"agent_tools"`

	// Guardrails lists guardrail names applied to user input
	// (refs into guardrails).
	Guardrails []string `yaml:"guardrails,omitempty" json:"guardrails,omitempty" mapstructure:"guardrails"`

	// Knowledge references a knowledge base searched on every run.
	Knowledge string `yaml:"knowledge,omitempty" json:"knowledge,omitempty" mapstructure:"knowledge"`

	// KnowledgeResults caps retrieval hits per model call.
	KnowledgeResults int `yaml:"knowledge_results,omitempty" json:"knowledge_results,omitempty" mapstructure:"knowledge_results"`

	// Memory bounds the conversation history sent to the model.
	Memory *AgentMemoryConfig `yaml:"memory,omitempty" json:"memory,omitempty" mapstructure:"memory"`

	// State seeds session state for sessions this agent creates.
	State map[string]any `yaml:"state,omitempty" json:"state,omitempty" mapstructure:"state"`

	// OutputSchema constrains the final answer to a JSON schema. The
	// answer is validated before it is returned.
	OutputSchema map[string]any `yaml:"output_schema,omitempty" json:"output_schema,omitempty" mapstructure:"output_schema"`

	// OutputKey stores the final answer into session state under this
	// key, where later runs and other agents can read it.
	OutputKey string `yaml:"output_key,omitempty" json:"output_key,omitempty" mapstructure:"output_key"`

	// MaxIterations caps model calls per run.
	MaxIterations int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty" mapstructure:"max_iterations"`
}

// AgentMemoryConfig configures the token-budgeted history window.
type AgentMemoryConfig struct {
	// Strategy selects the window behavior.
	// Values:
	//   - "window" (default): drop oldest messages over the budget
	//   - "summary": fold dropped messages into a rolling summary
	Strategy string `yaml:"strategy,omitempty" json:"strategy,omitempty" mapstructure:"strategy"`

	// MaxTokens is the token budget for history (default: 8000).
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" mapstructure:"max_tokens"`

	// PreserveRecent is the minimum number of recent messages kept even
	// over budget (default: 5).
	PreserveRecent int `yaml:"preserve_recent,omitempty" json:"preserve_recent,omitempty" mapstructure:"preserve_recent"`

	// Model selects the tokenizer encoding. Without it the window falls
	// back to character-based estimation.
	Model string `yaml:"model,omitempty" json:"model,omitempty" mapstructure:"model"`
}

// SetDefaults applies default values.
func (c *AgentConfig) SetDefaults() {
	if c.KnowledgeResults == 0 && c.Knowledge != "" {
		c.KnowledgeResults = 5
	}
	if c.Memory != nil {
		c.Memory.SetDefaults()
	}
}

// SetDefaults applies default values.
func (c *AgentMemoryConfig) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = "window"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 8000
	}
	if c.PreserveRecent == 0 {
		c.PreserveRecent = 5
	}
}

// Validate checks the agent configuration.
func (c *AgentConfig) Validate() error {
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be non-negative")
	}
	if c.Memory != nil {
		switch c.Memory.Strategy {
		case "", "window", "summary":
		default:
			return fmt.Errorf("invalid memory strategy %q (valid: window, summary)", c.Memory.Strategy)
		}
	}
	return nil
}
