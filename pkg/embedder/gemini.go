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

package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiEmbedder implements Embedder using the Gemini embeddings API.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
	batchSize int
	taskType  string
}

// GeminiConfig configures the Gemini embedder.
type GeminiConfig struct {
	// APIKey for the Gemini API (required).
	APIKey string

	// Model name (default: gemini-embedding-001).
	Model string

	// Dimension requested from the API (default: 768).
	// gemini-embedding-001 truncates output server-side to this size.
	Dimension int

	// BatchSize per request (default: 100).
	BatchSize int

	// TaskType hints the intended use, e.g. "RETRIEVAL_DOCUMENT" or
	// "RETRIEVAL_QUERY". Empty uses the API default.
	TaskType string
}

// NewGeminiEmbedder creates a new Gemini embedder.
func NewGeminiEmbedder(cfg GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-embedding-001"
	}

	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = 768
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiEmbedder{
		client:    client,
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
		taskType:  cfg.TaskType,
	}, nil
}

// Embed converts text to a vector embedding.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("received empty embedding from Gemini")
	}
	return embeddings[0], nil
}

// EmbedBatch converts multiple texts to vector embeddings, splitting the
// input into batches the API accepts.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (e *GeminiEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.Text(t)...)
	}

	config := &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(int32(e.dimension)),
	}
	if e.taskType != "" {
		config.TaskType = e.taskType
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("received %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("received empty embedding from Gemini")
		}
		out = append(out, emb.Values)
	}
	return out, nil
}

// Dimension returns the embedding vector dimension.
func (e *GeminiEmbedder) Dimension() int {
	return e.dimension
}

// Model returns the model name being used.
func (e *GeminiEmbedder) Model() string {
	return e.model
}

// Close releases any resources.
func (e *GeminiEmbedder) Close() error {
	return nil
}

// Ensure GeminiEmbedder implements Embedder.
var _ Embedder = (*GeminiEmbedder)(nil)
