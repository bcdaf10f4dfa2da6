package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reins-ai/reins/pkg/config"
)

func TestNewOllamaEmbedder_Defaults(t *testing.T) {
	e, err := NewOllamaEmbedder(OllamaConfig{})
	if err != nil {
		t.Fatalf("NewOllamaEmbedder() error = %v", err)
	}
	if e.Model() != "nomic-embed-text" {
		t.Errorf("Model() = %q, want nomic-embed-text", e.Model())
	}
	if e.Dimension() != 768 {
		t.Errorf("Dimension() = %d, want 768", e.Dimension())
	}
	if e.baseURL != "http://localhost:11434" {
		t.Errorf("baseURL = %q", e.baseURL)
	}
}

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	var gotReq ollamaEmbedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %q, want /api/embed", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(OllamaConfig{BaseURL: server.URL, Dimension: 2})
	if err != nil {
		t.Fatalf("NewOllamaEmbedder() error = %v", err)
	}

	got, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(got) != 2 || got[1][1] != 0.4 {
		t.Errorf("EmbedBatch() = %v", got)
	}

	// Array input for batches.
	if _, ok := gotReq.Input.([]any); !ok {
		t.Errorf("batch request input = %T, want array", gotReq.Input)
	}
	if gotReq.Model != "nomic-embed-text" {
		t.Errorf("request model = %q", gotReq.Model)
	}
}

func TestOllamaEmbedder_SingleInput(t *testing.T) {
	var gotReq ollamaEmbedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embeddings: [][]float32{{0.5, 0.6}},
		})
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(OllamaConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOllamaEmbedder() error = %v", err)
	}

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("Embed() = %v", vec)
	}

	// Single inputs are sent as a bare string.
	if _, ok := gotReq.Input.(string); !ok {
		t.Errorf("single request input = %T, want string", gotReq.Input)
	}
}

func TestOllamaEmbedder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(OllamaConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOllamaEmbedder() error = %v", err)
	}

	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Error("Embed() should surface API errors")
	}
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.EmbedderConfig
		wantErr bool
	}{
		{"nil config", nil, true},
		{"gemini without key", &config.EmbedderConfig{Provider: "gemini"}, true},
		{"unknown provider", &config.EmbedderConfig{Provider: "cohere"}, true},
		{"ollama defaults", &config.EmbedderConfig{Provider: "ollama"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && e == nil {
				t.Error("NewFromConfig() returned nil embedder")
			}
		})
	}
}
