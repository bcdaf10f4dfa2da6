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

// Package vector provides storage backends for embedding vectors.
//
// Knowledge bases upsert pre-computed embeddings into a Provider and run
// similarity queries against it. The chromem provider is embedded and
// zero-config; qdrant and pinecone talk to external services.
package vector

import (
	"context"
	"errors"
)

// ErrNoProvider is returned by write operations on NilProvider.
var ErrNoProvider = errors.New("no vector store configured")

// Result is a single similarity match returned by a search.
type Result struct {
	// ID of the stored document.
	ID string

	// Score is the similarity to the query vector (higher is closer).
	Score float32

	// Content is the document text, when stored.
	Content string

	// Vector is the stored embedding, when the backend returns it.
	Vector []float32

	// Metadata carries the key-value pairs stored with the document.
	Metadata map[string]any
}

// Provider stores embedding vectors and runs similarity searches.
//
// Collections group documents; providers create them on first use where
// the backend allows it. Vectors are computed externally by the embedder
// package and passed in pre-computed.
type Provider interface {
	// Upsert adds or replaces a document with its vector embedding.
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error

	// Search finds the topK most similar vectors in a collection.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// SearchWithFilter combines vector similarity with metadata filtering.
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)

	// Delete removes a document from a collection by ID.
	Delete(ctx context.Context, collection string, id string) error

	// DeleteByFilter removes all documents matching the filter.
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error

	// CreateCollection creates a collection for vectors of the given
	// dimension. A no-op when the backend creates collections lazily.
	CreateCollection(ctx context.Context, collection string, vectorDimension int) error

	// DeleteCollection removes a collection and all its documents.
	DeleteCollection(ctx context.Context, collection string) error

	// Name returns the provider name.
	Name() string

	// Close releases resources and flushes any pending persistence.
	Close() error
}

// NilProvider is the Provider used when no vector store is configured.
// Searches return nothing and writes fail loudly.
type NilProvider struct{}

func (NilProvider) Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error {
	return ErrNoProvider
}

func (NilProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	return nil, nil
}

func (NilProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error) {
	return nil, nil
}

func (NilProvider) Delete(ctx context.Context, collection string, id string) error {
	return ErrNoProvider
}

func (NilProvider) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	return ErrNoProvider
}

func (NilProvider) CreateCollection(ctx context.Context, collection string, vectorDimension int) error {
	return nil
}

func (NilProvider) DeleteCollection(ctx context.Context, collection string) error {
	return nil
}

func (NilProvider) Name() string { return "nil" }

func (NilProvider) Close() error { return nil }

// Ensure NilProvider implements Provider.
var _ Provider = NilProvider{}
