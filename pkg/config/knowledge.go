package config

import (
	"fmt"

	"github.com/reins-ai/reins/pkg/vector"
)

// KnowledgeConfig configures a knowledge base.
//
// A knowledge base indexes documents into a vector store at startup and
// is searched with the user's message to ground agent answers.
//
// Example:
//
//	embedders:
//	  default:
//	    provider: gemini
//	    api_key: ${GOOGLE_API_KEY}
//
//	vector_stores:
//	  local:
//	    type: chromem
//	    chromem:
//	      persist_path: .reins/vectors
//
//	knowledge:
//	  recipes:
//	    embedder: default
//	    vector_store: local
//	    sources: [./docs/recipes]
type KnowledgeConfig struct {
	// Description of the knowledge base, surfaced in its search tool.
	Description string `yaml:"description,omitempty" json:"description,omitempty" mapstructure:"description"`

	// Embedder references an embedder from the embedders section. Required.
	Embedder string `yaml:"embedder" json:"embedder" mapstructure:"embedder"`

	// VectorStore references a store from the vector_stores section. Required.
	VectorStore string `yaml:"vector_store" json:"vector_store" mapstructure:"vector_store"`

	// Collection is the vector collection name. Defaults to the
	// knowledge base name.
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty" mapstructure:"collection"`

	// MaxResults caps search hits (default: 5).
	MaxResults int `yaml:"max_results,omitempty" json:"max_results,omitempty" mapstructure:"max_results"`

	// Chunking controls how documents are split before embedding.
	Chunking ChunkingConfig `yaml:"chunking,omitempty" json:"chunking,omitempty" mapstructure:"chunking"`

	// Sources are files or directories indexed at startup. Supported
	// formats: plain text, markdown, PDF, DOCX, XLSX.
	Sources []string `yaml:"sources,omitempty" json:"sources,omitempty" mapstructure:"sources"`
}

// ChunkingConfig controls document splitting.
type ChunkingConfig struct {
	// Size is the target chunk size in characters (default: 800).
	Size int `yaml:"size,omitempty" json:"size,omitempty" mapstructure:"size"`

	// Overlap is the number of trailing characters repeated at the
	// start of the next chunk.
	Overlap int `yaml:"overlap,omitempty" json:"overlap,omitempty" mapstructure:"overlap"`
}

// SetDefaults applies default values.
func (c *KnowledgeConfig) SetDefaults() {
	if c.MaxResults == 0 {
		c.MaxResults = 5
	}
}

// Validate checks the knowledge configuration.
func (c *KnowledgeConfig) Validate() error {
	if c.Embedder == "" {
		return fmt.Errorf("embedder reference is required")
	}
	if c.VectorStore == "" {
		return fmt.Errorf("vector_store reference is required")
	}
	if c.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative")
	}
	if c.Chunking.Size < 0 || c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking size and overlap must be non-negative")
	}
	return nil
}

// VectorStoreConfig configures a vector store. It reuses the provider
// factory config so the same section drives vector.NewProvider directly.
type VectorStoreConfig = vector.ProviderConfig
