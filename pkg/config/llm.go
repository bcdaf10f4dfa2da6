package config

import (
	"fmt"
	"os"
)

// LLMProvider identifies the LLM provider type.
type LLMProvider string

const (
	LLMProviderGemini LLMProvider = "gemini"
	LLMProviderOllama LLMProvider = "ollama"
)

// LLMConfig configures an LLM provider.
//
// Example:
//
//	llms:
//	  default:
//	    provider: gemini
//	    model: gemini-2.0-flash
//	    api_key: ${GOOGLE_API_KEY}
//
//	  local:
//	    provider: ollama
//	    model: llama3.2
//	    base_url: http://localhost:11434
type LLMConfig struct {
	// Provider type (gemini, ollama).
	Provider LLMProvider `yaml:"provider,omitempty" json:"provider,omitempty" mapstructure:"provider"`

	// Model name (e.g., "gemini-2.0-flash", "llama3.2").
	Model string `yaml:"model,omitempty" json:"model,omitempty" mapstructure:"model"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the default API endpoint (ollama).
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" mapstructure:"base_url"`

	// Temperature for generation (0-2).
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty" mapstructure:"temperature"`

	// TopP for nucleus sampling.
	TopP *float64 `yaml:"top_p,omitempty" json:"top_p,omitempty" mapstructure:"top_p"`

	// TopK for top-k sampling.
	TopK *int `yaml:"top_k,omitempty" json:"top_k,omitempty" mapstructure:"top_k"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" mapstructure:"max_tokens"`

	// NumCtx sets the context window size (ollama).
	NumCtx *int `yaml:"num_ctx,omitempty" json:"num_ctx,omitempty" mapstructure:"num_ctx"`

	// Seed for reproducible outputs (ollama).
	Seed *int `yaml:"seed,omitempty" json:"seed,omitempty" mapstructure:"seed"`

	// KeepAlive controls how long the model stays loaded (ollama).
	KeepAlive string `yaml:"keep_alive,omitempty" json:"keep_alive,omitempty" mapstructure:"keep_alive"`

	// Timeout in seconds for API requests.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty" mapstructure:"timeout"`

	// MaxRetries for HTTP requests with retry/backoff (ollama).
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" mapstructure:"max_retries"`
}

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = detectProviderFromEnv()
	}

	if c.Model == "" {
		switch c.Provider {
		case LLMProviderOllama:
			c.Model = "llama3.2"
		default:
			c.Model = "gemini-2.0-flash"
		}
	}

	if c.APIKey == "" {
		c.APIKey = getAPIKeyFromEnv(c.Provider)
	}

	if c.BaseURL == "" && c.Provider == LLMProviderOllama {
		c.BaseURL = "http://localhost:11434"
	}

	if c.Temperature == nil {
		temp := 0.7
		c.Temperature = &temp
	}

	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
}

// Validate checks the LLM configuration.
func (c *LLMConfig) Validate() error {
	validProviders := map[LLMProvider]bool{
		LLMProviderGemini: true,
		LLMProviderOllama: true,
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q (valid: gemini, ollama)", c.Provider)
	}

	// Ollama doesn't require an API key
	if c.Provider == LLMProviderGemini && c.APIKey == "" {
		return fmt.Errorf("api_key is required for provider %q", c.Provider)
	}

	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}

	return nil
}

// detectProviderFromEnv detects the provider from the environment.
func detectProviderFromEnv() LLMProvider {
	if os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != "" {
		return LLMProviderGemini
	}
	if os.Getenv("OLLAMA_HOST") != "" {
		return LLMProviderOllama
	}
	// Default to Gemini
	return LLMProviderGemini
}

// getAPIKeyFromEnv gets the API key for a provider from the environment.
func getAPIKeyFromEnv(provider LLMProvider) string {
	switch provider {
	case LLMProviderGemini:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}
