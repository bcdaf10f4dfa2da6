package config

import "fmt"

// EmbedderConfig configures an embedding provider for semantic search.
//
// Embedders convert text to vector embeddings; knowledge bases use them
// to index and query documents.
//
// Example:
//
//	embedders:
//	  default:
//	    provider: gemini
//	    model: gemini-embedding-001
//	    api_key: ${GOOGLE_API_KEY}
//
//	  local:
//	    provider: ollama
//	    model: nomic-embed-text
//	    base_url: http://localhost:11434
type EmbedderConfig struct {
	// Provider specifies the embedding service: "gemini" or "ollama".
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty" mapstructure:"provider"`

	// Model is the embedding model name.
	// Gemini: "gemini-embedding-001", "text-embedding-004"
	// Ollama: "nomic-embed-text", "all-minilm:l6-v2"
	Model string `yaml:"model,omitempty" json:"model,omitempty" mapstructure:"model"`

	// APIKey for the embedding provider (Gemini requires this).
	// Supports environment variable expansion: ${GOOGLE_API_KEY}
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL for the API endpoint (Ollama default: http://localhost:11434).
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" mapstructure:"base_url"`

	// Dimension of the embedding vectors (defaulted per model if 0).
	Dimension int `yaml:"dimension,omitempty" json:"dimension,omitempty" mapstructure:"dimension"`

	// Timeout in seconds for API requests (default: 30).
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty" mapstructure:"timeout"`

	// BatchSize for batch embedding requests (default: 100).
	BatchSize int `yaml:"batch_size,omitempty" json:"batch_size,omitempty" mapstructure:"batch_size"`
}

// SetDefaults applies default values.
func (c *EmbedderConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "gemini"
	}

	if c.Model == "" {
		switch c.Provider {
		case "ollama":
			c.Model = "nomic-embed-text"
		default:
			c.Model = "gemini-embedding-001"
		}
	}

	if c.BaseURL == "" && c.Provider == "ollama" {
		c.BaseURL = "http://localhost:11434"
	}

	if c.Dimension == 0 {
		switch c.Provider {
		case "ollama":
			switch c.Model {
			case "all-minilm:l6-v2", "bge-small-en-v1.5":
				c.Dimension = 384
			case "bge-large-en-v1.5":
				c.Dimension = 1024
			default:
				c.Dimension = 768
			}
		default:
			// gemini-embedding-001 is truncated server-side to the
			// requested output dimensionality.
			c.Dimension = 768
		}
	}

	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
}

// Validate checks the embedder configuration.
func (c *EmbedderConfig) Validate() error {
	validProviders := map[string]bool{
		"gemini": true,
		"ollama": true,
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q (valid: gemini, ollama)", c.Provider)
	}

	if c.Provider == "gemini" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for gemini embedder")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive")
	}
	return nil
}
