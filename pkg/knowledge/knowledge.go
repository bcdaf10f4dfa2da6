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

// Package knowledge provides retrieval-augmented knowledge bases.
//
// A Base pairs an embedder with a vector store. Documents added through
// AddText, AddFile or AddDir are chunked, embedded and upserted into a
// collection; Search embeds a query and returns the closest chunks.
// SearchTool exposes Search as an agent tool, so a model can decide for
// itself when to consult the base:
//
//	kb, _ := knowledge.New(knowledge.Config{
//	    Name:     "product-docs",
//	    Embedder: emb,
//	    Vector:   store,
//	})
//	kb.AddDir(ctx, "./docs", nil)
//
//	searchTool, _ := kb.SearchTool()
//	// attach searchTool to the agent
package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/reins-ai/reins/pkg/embedder"
	"github.com/reins-ai/reins/pkg/tool"
	"github.com/reins-ai/reins/pkg/tool/functiontool"
	"github.com/reins-ai/reins/pkg/vector"
)

// DefaultMaxResults caps Search results when the caller does not.
const DefaultMaxResults = 5

// Config configures a knowledge base.
type Config struct {
	// Name identifies the knowledge base (required).
	Name string

	// Collection is the vector collection documents are stored in.
	// Defaults to Name.
	Collection string

	// MaxResults is the default number of Search results (default: 5).
	MaxResults int

	// Chunking controls how documents are split before embedding.
	Chunking ChunkConfig

	// Embedder converts text to vectors (required).
	Embedder embedder.Embedder

	// Vector stores and searches embeddings (required).
	Vector vector.Provider
}

// Base is a knowledge base backed by an embedder and a vector store.
type Base struct {
	name       string
	collection string
	maxResults int
	chunking   ChunkConfig
	embedder   embedder.Embedder
	vector     vector.Provider
}

// Result is one retrieved passage.
type Result struct {
	// Content is the chunk text.
	Content string

	// Score is the similarity to the query, higher is closer.
	Score float32

	// Source names the document the chunk came from.
	Source string

	// Metadata carries the chunk's stored metadata.
	Metadata map[string]any
}

// New creates a knowledge base.
func New(cfg Config) (*Base, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("knowledge base name is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Vector == nil {
		return nil, fmt.Errorf("vector provider is required")
	}

	cfg.Chunking.SetDefaults()
	if err := cfg.Chunking.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = cfg.Name
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	return &Base{
		name:       cfg.Name,
		collection: collection,
		maxResults: maxResults,
		chunking:   cfg.Chunking,
		embedder:   cfg.Embedder,
		vector:     cfg.Vector,
	}, nil
}

// Name returns the knowledge base name.
func (b *Base) Name() string { return b.name }

// Collection returns the vector collection name.
func (b *Base) Collection() string { return b.collection }

// AddText chunks, embeds and stores a document. Re-adding a document
// with the same name replaces its previous chunks.
func (b *Base) AddText(ctx context.Context, name, text string, metadata map[string]any) error {
	if name == "" {
		return fmt.Errorf("document name is required")
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("document %q has no content", name)
	}

	chunks := splitChunks(text, b.chunking)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed document %q: %w", name, err)
	}

	// Drop chunks from a previous version so a shrinking document leaves
	// no stale tail behind. Missing collections are fine here.
	if err := b.vector.DeleteByFilter(ctx, b.collection, map[string]any{"source": name}); err != nil {
		slog.Debug("No previous chunks to replace", "base", b.name, "document", name, "error", err)
	}

	for i, c := range chunks {
		meta := make(map[string]any, len(metadata)+4)
		for k, v := range metadata {
			meta[k] = v
		}
		meta["content"] = c.Content
		meta["source"] = name
		meta["chunk_index"] = c.Index
		meta["chunk_total"] = c.Total

		if err := b.vector.Upsert(ctx, b.collection, chunkID(name, c.Index), vectors[i], meta); err != nil {
			return fmt.Errorf("failed to store chunk %d of %q: %w", c.Index, name, err)
		}
	}

	slog.Debug("Added document to knowledge base",
		"base", b.name, "document", name, "chunks", len(chunks))
	return nil
}

// AddFile reads a document from disk and adds it. The document name is
// the file's base name.
func (b *Base) AddFile(ctx context.Context, path string, metadata map[string]any) error {
	content, fileMeta, err := ReadFile(ctx, path)
	if err != nil {
		return err
	}

	meta := make(map[string]any, len(metadata)+len(fileMeta)+1)
	for k, v := range fileMeta {
		meta[k] = v
	}
	for k, v := range metadata {
		meta[k] = v
	}
	meta["path"] = path

	return b.AddText(ctx, filepath.Base(path), content, meta)
}

// AddDir walks a directory tree and adds every supported document.
// Unreadable documents are logged and skipped; hidden directories are
// not descended into.
func (b *Base) AddDir(ctx context.Context, dir string, metadata map[string]any) error {
	supported := make(map[string]bool)
	for _, ext := range SupportedExtensions() {
		supported[ext] = true
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !supported[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if err := b.AddFile(ctx, path, metadata); err != nil {
			slog.Warn("Skipping document", "base", b.name, "path", path, "error", err)
		}
		return nil
	})
}

// Search embeds the query and returns the closest chunks. maxResults of
// zero or less uses the base's default.
func (b *Base) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if maxResults <= 0 {
		maxResults = b.maxResults
	}

	qvec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := b.vector.Search(ctx, b.collection, qvec, maxResults)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		source := ""
		if s, ok := h.Metadata["source"].(string); ok {
			source = s
		}
		results = append(results, Result{
			Content:  h.Content,
			Score:    h.Score,
			Source:   source,
			Metadata: h.Metadata,
		})
	}
	return results, nil
}

type searchKnowledgeArgs struct {
	Query      string `json:"query" jsonschema:"required,description=The search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of passages to return"`
}

// SearchTool wraps Search as an agent tool named search_knowledge. The
// tool runs without approval; it only reads the base.
func (b *Base) SearchTool() (tool.CallableTool, error) {
	return functiontool.New(functiontool.Config{
		Name: "search_knowledge",
		Description: fmt.Sprintf("Search the %s knowledge base for passages relevant to a query. "+
			"Returns the most similar passages with their sources.", b.name),
	}, func(ctx tool.Context, args searchKnowledgeArgs) (map[string]any, error) {
		results, err := b.Search(ctx, args.Query, args.MaxResults)
		if err != nil {
			return nil, err
		}

		passages := make([]map[string]any, len(results))
		for i, r := range results {
			passages[i] = map[string]any{
				"content": r.Content,
				"source":  r.Source,
				"score":   r.Score,
			}
		}
		return map[string]any{
			"results": passages,
			"count":   len(passages),
		}, nil
	})
}

// chunkID derives a stable UUID for a chunk so re-added documents
// overwrite their earlier chunks. UUIDs keep the ID valid for stores
// that restrict point ID formats.
func chunkID(name string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s#%d", name, index)).String()
}
