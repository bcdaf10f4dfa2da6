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

package vector

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeConfig configures the Pinecone vector provider.
type PineconeConfig struct {
	// APIKey is required for Pinecone authentication.
	APIKey string `yaml:"api_key" json:"api_key" mapstructure:"api_key"`

	// Host is the Pinecone API host (optional, defaults to https://api.pinecone.io).
	Host string `yaml:"host,omitempty" json:"host,omitempty" mapstructure:"host"`

	// IndexName is the index used when a collection name is empty.
	IndexName string `yaml:"index_name" json:"index_name" mapstructure:"index_name"`
}

// PineconeProvider implements Provider using the Pinecone managed
// vector database. Collection names map to Pinecone indexes, which
// must be created ahead of time; CreateCollection only verifies
// existence because serverless index creation needs cloud and region
// choices this provider does not make.
type PineconeProvider struct {
	client    *pinecone.Client
	config    PineconeConfig
	indexName string
}

// NewPineconeProvider creates a new Pinecone provider.
func NewPineconeProvider(cfg PineconeConfig) (*PineconeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}

	params := pinecone.NewClientParams{
		ApiKey: cfg.APIKey,
	}
	if cfg.Host != "" {
		params.Host = cfg.Host
	}

	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	indexName := cfg.IndexName
	if indexName == "" {
		indexName = "reins-index"
	}

	return &PineconeProvider{
		client:    client,
		config:    cfg,
		indexName: indexName,
	}, nil
}

// Name returns the provider name.
func (p *PineconeProvider) Name() string {
	return "pinecone"
}

func (p *PineconeProvider) index(collection string) string {
	if collection == "" {
		return p.indexName
	}
	return collection
}

// connect opens an IndexConnection for the named index.
func (p *PineconeProvider) connect(ctx context.Context, indexName string) (*pinecone.IndexConnection, error) {
	index, err := p.client.DescribeIndex(ctx, indexName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index %s: %w", indexName, err)
	}

	conn, err := p.client.Index(pinecone.NewIndexConnParams{
		Host:      index.Host,
		Namespace: "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to index %s: %w", indexName, err)
	}

	return conn, nil
}

// pineconeStruct converts a metadata or filter map to the protobuf
// struct the Pinecone API expects. Returns nil for empty maps.
func pineconeStruct(m map[string]any) (*structpb.Struct, error) {
	if len(m) == 0 {
		return nil, nil
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to convert metadata: %w", err)
	}
	return s, nil
}

// Upsert adds or replaces a document with its vector embedding.
func (p *PineconeProvider) Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error {
	conn, err := p.connect(ctx, p.index(collection))
	if err != nil {
		return err
	}
	defer conn.Close()

	meta, err := pineconeStruct(metadata)
	if err != nil {
		return err
	}

	_, err = conn.UpsertVectors(ctx, []*pinecone.Vector{{
		Id:       id,
		Values:   vector,
		Metadata: meta,
	}})
	if err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}

	return nil
}

// Search finds the topK most similar vectors in a collection.
func (p *PineconeProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	return p.SearchWithFilter(ctx, collection, vector, topK, nil)
}

// SearchWithFilter combines vector similarity with metadata filtering.
func (p *PineconeProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error) {
	conn, err := p.connect(ctx, p.index(collection))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	metadataFilter, err := pineconeStruct(filter)
	if err != nil {
		return nil, err
	}

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		MetadataFilter:  metadataFilter,
		IncludeMetadata: true,
		IncludeValues:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return decodePineconeMatches(resp.Matches), nil
}

// Delete removes a document from a collection by ID.
func (p *PineconeProvider) Delete(ctx context.Context, collection string, id string) error {
	conn, err := p.connect(ctx, p.index(collection))
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteVectorsById(ctx, []string{id}); err != nil {
		return fmt.Errorf("failed to delete vector: %w", err)
	}

	return nil
}

// DeleteByFilter removes all documents matching the filter.
func (p *PineconeProvider) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	conn, err := p.connect(ctx, p.index(collection))
	if err != nil {
		return err
	}
	defer conn.Close()

	metadataFilter, err := pineconeStruct(filter)
	if err != nil {
		return err
	}

	if err := conn.DeleteVectorsByFilter(ctx, metadataFilter); err != nil {
		return fmt.Errorf("failed to delete by filter: %w", err)
	}

	return nil
}

// CreateCollection verifies the index exists.
func (p *PineconeProvider) CreateCollection(ctx context.Context, collection string, vectorDimension int) error {
	indexName := p.index(collection)

	indexes, err := p.client.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}

	for _, idx := range indexes {
		if idx.Name == indexName {
			return nil
		}
	}

	return fmt.Errorf("index %s does not exist; create it via the Pinecone console or API", indexName)
}

// DeleteCollection removes the backing index.
func (p *PineconeProvider) DeleteCollection(ctx context.Context, collection string) error {
	indexName := p.index(collection)
	if err := p.client.DeleteIndex(ctx, indexName); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", indexName, err)
	}
	return nil
}

// Close releases resources. The Pinecone client holds no persistent
// connections outside per-call IndexConnections.
func (p *PineconeProvider) Close() error {
	return nil
}

// decodePineconeMatches converts scored vectors to Results.
func decodePineconeMatches(matches []*pinecone.ScoredVector) []Result {
	results := make([]Result, 0, len(matches))

	for _, match := range matches {
		if match.Vector == nil {
			continue
		}

		metadata := make(map[string]any)
		if match.Vector.Metadata != nil {
			for k, v := range match.Vector.Metadata.AsMap() {
				metadata[k] = v
			}
		}

		content := ""
		if c, ok := metadata["content"].(string); ok {
			content = c
		}

		results = append(results, Result{
			ID:       match.Vector.Id,
			Score:    match.Score,
			Content:  content,
			Vector:   match.Vector.Values,
			Metadata: metadata,
		})
	}

	return results
}

// Ensure PineconeProvider implements Provider.
var _ Provider = (*PineconeProvider)(nil)
