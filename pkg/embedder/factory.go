package embedder

import (
	"fmt"
	"time"

	"github.com/reins-ai/reins/pkg/config"
)

// NewFromConfig creates an Embedder from configuration.
func NewFromConfig(cfg *config.EmbedderConfig) (Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embedder config is required")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedder config: %w", err)
	}

	switch cfg.Provider {
	case "gemini":
		return NewGeminiEmbedder(GeminiConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			BatchSize: cfg.BatchSize,
		})

	case "ollama":
		return NewOllamaEmbedder(OllamaConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   time.Duration(cfg.Timeout) * time.Second,
		})

	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s (supported: gemini, ollama)", cfg.Provider)
	}
}
