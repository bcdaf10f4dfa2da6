// Copyright 2026 The Reins Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the declarative runtime
// configuration.
//
// Configuration flows through a fixed pipeline: a provider reads raw
// bytes (file or zookeeper), YAML is parsed into a map, ${VAR} and
// ${VAR:-default} references are expanded from the environment, the map
// is decoded into Config, defaults are applied, and the result is
// validated — including cross-section references (an agent's llm must
// name an entry in llms, and so on).
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration.
type Config struct {
	// Name of the deployment, for logging and display.
	Name string `yaml:"name,omitempty" json:"name,omitempty" mapstructure:"name"`

	// Description of the deployment.
	Description string `yaml:"description,omitempty" json:"description,omitempty" mapstructure:"description"`

	// LLMs are named model providers.
	LLMs map[string]*LLMConfig `yaml:"llms,omitempty" json:"llms,omitempty" mapstructure:"llms"`

	// Embedders are named embedding providers.
	Embedders map[string]*EmbedderConfig `yaml:"embedders,omitempty" json:"embedders,omitempty" mapstructure:"embedders"`

	// Databases are named SQL connections shared by the stores.
	Databases map[string]*DatabaseConfig `yaml:"databases,omitempty" json:"databases,omitempty" mapstructure:"databases"`

	// VectorStores are named vector providers.
	VectorStores map[string]*VectorStoreConfig `yaml:"vector_stores,omitempty" json:"vector_stores,omitempty" mapstructure:"vector_stores"`

	// Knowledge are named knowledge bases.
	Knowledge map[string]*KnowledgeConfig `yaml:"knowledge,omitempty" json:"knowledge,omitempty" mapstructure:"knowledge"`

	// Tools are named tools and toolsets.
	Tools map[string]*ToolConfig `yaml:"tools,omitempty" json:"tools,omitempty" mapstructure:"tools"`

	// Guardrails are named input checks.
	Guardrails map[string]*GuardrailConfig `yaml:"guardrails,omitempty" json:"guardrails,omitempty" mapstructure:"guardrails"`

	// Agents are the configured agents, keyed by agent name.
	Agents map[string]*AgentConfig `yaml:"agents,omitempty" json:"agents,omitempty" mapstructure:"agents"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty" mapstructure:"server"`

	// Logger configures logging.
	Logger LoggerConfig `yaml:"logger,omitempty" json:"logger,omitempty" mapstructure:"logger"`
}

// SetDefaults applies default values across all sections.
func (c *Config) SetDefaults() {
	if c.LLMs == nil {
		c.LLMs = make(map[string]*LLMConfig)
	}
	if c.Agents == nil {
		c.Agents = make(map[string]*AgentConfig)
	}

	// A usable config needs at least one model and one agent.
	if len(c.LLMs) == 0 {
		c.LLMs["default"] = &LLMConfig{}
	}
	if len(c.Agents) == 0 {
		c.Agents["assistant"] = &AgentConfig{}
	}

	for _, llm := range c.LLMs {
		if llm != nil {
			llm.SetDefaults()
		}
	}
	for _, e := range c.Embedders {
		if e != nil {
			e.SetDefaults()
		}
	}
	for _, db := range c.Databases {
		if db != nil {
			db.SetDefaults()
		}
	}
	for _, vs := range c.VectorStores {
		if vs != nil {
			vs.SetDefaults()
		}
	}
	for name, kb := range c.Knowledge {
		if kb != nil {
			if kb.Collection == "" {
				kb.Collection = name
			}
			kb.SetDefaults()
		}
	}
	for _, t := range c.Tools {
		if t != nil {
			t.SetDefaults()
		}
	}
	for _, g := range c.Guardrails {
		if g != nil {
			g.SetDefaults()
		}
	}
	for name, agent := range c.Agents {
		if agent != nil {
			if agent.Name == "" {
				agent.Name = name
			}
			if agent.LLM == "" {
				agent.LLM = c.defaultLLM()
			}
			agent.SetDefaults()
		}
	}

	c.Server.SetDefaults()
	c.Logger.SetDefaults()
}

// defaultLLM picks the LLM reference for agents that don't name one:
// the entry called "default" when present, otherwise the sole entry.
func (c *Config) defaultLLM() string {
	if _, ok := c.LLMs["default"]; ok {
		return "default"
	}
	if len(c.LLMs) == 1 {
		for name := range c.LLMs {
			return name
		}
	}
	return ""
}

// Validate checks every section and all cross-section references.
func (c *Config) Validate() error {
	for name, llm := range c.LLMs {
		if llm != nil {
			if err := llm.Validate(); err != nil {
				return fmt.Errorf("llm %q: %w", name, err)
			}
		}
	}
	for name, e := range c.Embedders {
		if e != nil {
			if err := e.Validate(); err != nil {
				return fmt.Errorf("embedder %q: %w", name, err)
			}
		}
	}
	for name, db := range c.Databases {
		if db != nil {
			if err := db.Validate(); err != nil {
				return fmt.Errorf("database %q: %w", name, err)
			}
		}
	}
	for name, vs := range c.VectorStores {
		if vs != nil {
			if err := vs.Validate(); err != nil {
				return fmt.Errorf("vector store %q: %w", name, err)
			}
		}
	}
	for name, kb := range c.Knowledge {
		if kb != nil {
			if err := kb.Validate(); err != nil {
				return fmt.Errorf("knowledge base %q: %w", name, err)
			}
		}
	}
	for name, t := range c.Tools {
		if t != nil {
			if err := t.Validate(); err != nil {
				return fmt.Errorf("tool %q: %w", name, err)
			}
		}
	}
	for name, g := range c.Guardrails {
		if g != nil {
			if err := g.Validate(); err != nil {
				return fmt.Errorf("guardrail %q: %w", name, err)
			}
		}
	}
	for name, agent := range c.Agents {
		if agent != nil {
			if err := agent.Validate(); err != nil {
				return fmt.Errorf("agent %q: %w", name, err)
			}
		}
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	return c.validateReferences()
}

// validateReferences checks that every by-name reference resolves.
func (c *Config) validateReferences() error {
	for agentName, agent := range c.Agents {
		if agent == nil {
			continue
		}

		if agent.LLM != "" {
			if _, ok := c.LLMs[agent.LLM]; !ok {
				return fmt.Errorf("agent %q: llm %q not found (available: %v)",
					agentName, agent.LLM, mapKeys(c.LLMs))
			}
		}
		for _, toolName := range agent.Tools {
			if _, ok := c.Tools[toolName]; !ok {
				return fmt.Errorf("agent %q: tool %q not found (available: %v)",
					agentName, toolName, mapKeys(c.Tools))
			}
		}
		for _, sub := range agent.AgentTools {
			if sub == agentName {
				return fmt.Errorf("agent %q: cannot use itself as an agent tool", agentName)
			}
			if _, ok := c.Agents[sub]; !ok {
				return fmt.Errorf("agent %q: agent tool %q not found (available: %v)",
					agentName, sub, mapKeys(c.Agents))
			}
		}
		for _, g := range agent.Guardrails {
			if _, ok := c.Guardrails[g]; !ok {
				return fmt.Errorf("agent %q: guardrail %q not found (available: %v)",
					agentName, g, mapKeys(c.Guardrails))
			}
		}
		if agent.Knowledge != "" {
			if _, ok := c.Knowledge[agent.Knowledge]; !ok {
				return fmt.Errorf("agent %q: knowledge base %q not found (available: %v)",
					agentName, agent.Knowledge, mapKeys(c.Knowledge))
			}
		}
	}

	for kbName, kb := range c.Knowledge {
		if kb == nil {
			continue
		}
		if _, ok := c.Embedders[kb.Embedder]; !ok {
			return fmt.Errorf("knowledge base %q: embedder %q not found (available: %v)",
				kbName, kb.Embedder, mapKeys(c.Embedders))
		}
		if _, ok := c.VectorStores[kb.VectorStore]; !ok {
			return fmt.Errorf("knowledge base %q: vector store %q not found (available: %v)",
				kbName, kb.VectorStore, mapKeys(c.VectorStores))
		}
	}

	for _, section := range []struct {
		name    string
		storage *StorageConfig
	}{
		{"sessions", c.Server.Sessions},
		{"runs", c.Server.Runs},
		{"approvals", c.Server.Approvals},
	} {
		if section.storage.IsSQL() {
			if _, ok := c.Databases[section.storage.Database]; !ok {
				return fmt.Errorf("server %s: database %q not found (available: %v)",
					section.name, section.storage.Database, mapKeys(c.Databases))
			}
		}
	}

	return nil
}

// GetAgent returns the named agent config.
func (c *Config) GetAgent(name string) (*AgentConfig, bool) {
	agent, ok := c.Agents[name]
	return agent, ok
}

// ListAgents returns all agent names.
func (c *Config) ListAgents() []string {
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	return names
}

// ValidateAgent checks that an agent exists, with a helpful message
// listing the alternatives when it does not.
func (c *Config) ValidateAgent(name string) error {
	if _, ok := c.Agents[name]; ok {
		return nil
	}

	available := c.ListAgents()
	if len(available) == 0 {
		return fmt.Errorf("agent %q not found: no agents defined in configuration", name)
	}
	return fmt.Errorf("agent %q not found\n\nAvailable agents:\n  - %s",
		name, strings.Join(available, "\n  - "))
}

func mapKeys[K comparable, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
