package vector

import (
	"context"
	"errors"
	"testing"
)

func newTestProvider(t *testing.T) *ChromemProvider {
	t.Helper()
	p, err := NewChromemProvider(ChromemConfig{})
	if err != nil {
		t.Fatalf("NewChromemProvider() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestChromemProvider_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	docs := []struct {
		id      string
		vector  []float32
		content string
	}{
		{"doc-1", []float32{1, 0, 0}, "reins approval workflow"},
		{"doc-2", []float32{0, 1, 0}, "unrelated topic"},
		{"doc-3", []float32{0.9, 0.1, 0}, "reins run lifecycle"},
	}
	for _, d := range docs {
		err := p.Upsert(ctx, "kb", d.id, d.vector, map[string]any{"content": d.content})
		if err != nil {
			t.Fatalf("Upsert(%s) error = %v", d.id, err)
		}
	}

	results, err := p.Search(ctx, "kb", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].ID != "doc-1" {
		t.Errorf("results[0].ID = %q, want doc-1", results[0].ID)
	}
	if results[1].ID != "doc-3" {
		t.Errorf("results[1].ID = %q, want doc-3", results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not ordered by score: %v < %v", results[0].Score, results[1].Score)
	}
	if results[0].Content != "reins approval workflow" {
		t.Errorf("results[0].Content = %q", results[0].Content)
	}
}

func TestChromemProvider_SearchWithFilter(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	meta := func(source string) map[string]any {
		return map[string]any{"content": "text", "source": source}
	}
	if err := p.Upsert(ctx, "kb", "a", []float32{1, 0}, meta("docs")); err != nil {
		t.Fatal(err)
	}
	if err := p.Upsert(ctx, "kb", "b", []float32{0.99, 0.01}, meta("web")); err != nil {
		t.Fatal(err)
	}

	results, err := p.SearchWithFilter(ctx, "kb", []float32{1, 0}, 5, map[string]any{"source": "web"})
	if err != nil {
		t.Fatalf("SearchWithFilter() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("SearchWithFilter() returned %d results, want 1", len(results))
	}
	if results[0].ID != "b" {
		t.Errorf("results[0].ID = %q, want b", results[0].ID)
	}
	if results[0].Metadata["source"] != "web" {
		t.Errorf("results[0].Metadata[source] = %v, want web", results[0].Metadata["source"])
	}
}

func TestChromemProvider_SearchClampsTopK(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	if err := p.Upsert(ctx, "kb", "only", []float32{1, 0}, nil); err != nil {
		t.Fatal(err)
	}

	// Asking for more results than stored must not fail.
	results, err := p.Search(ctx, "kb", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Search() returned %d results, want 1", len(results))
	}
}

func TestChromemProvider_SearchEmptyCollection(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	results, err := p.Search(ctx, "empty", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search() returned %d results, want 0", len(results))
	}
}

func TestChromemProvider_Delete(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	if err := p.Upsert(ctx, "kb", "gone", []float32{1, 0}, nil); err != nil {
		t.Fatal(err)
	}
	if err := p.Delete(ctx, "kb", "gone"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	results, err := p.Search(ctx, "kb", []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("deleted document still returned: %v", results)
	}
}

func TestChromemProvider_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	p1, err := NewChromemProvider(ChromemConfig{PersistPath: dir})
	if err != nil {
		t.Fatalf("NewChromemProvider() error = %v", err)
	}
	err = p1.Upsert(ctx, "kb", "persisted", []float32{1, 0}, map[string]any{"content": "survives restart"})
	if err != nil {
		t.Fatal(err)
	}
	if err := p1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	p2, err := NewChromemProvider(ChromemConfig{PersistPath: dir})
	if err != nil {
		t.Fatalf("NewChromemProvider() reopen error = %v", err)
	}
	defer p2.Close()

	results, err := p2.Search(ctx, "kb", []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search() after reopen error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search() after reopen returned %d results, want 1", len(results))
	}
	if results[0].ID != "persisted" {
		t.Errorf("results[0].ID = %q, want persisted", results[0].ID)
	}
	if results[0].Content != "survives restart" {
		t.Errorf("results[0].Content = %q", results[0].Content)
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *ProviderConfig
		wantName string
		wantErr  bool
	}{
		{name: "nil config yields nil provider", cfg: nil, wantName: "nil"},
		{name: "defaults to chromem", cfg: &ProviderConfig{}, wantName: "chromem"},
		{name: "unknown type", cfg: &ProviderConfig{Type: "faiss"}, wantErr: true},
		{name: "qdrant without config", cfg: &ProviderConfig{Type: ProviderQdrant}, wantErr: true},
		{name: "pinecone without key", cfg: &ProviderConfig{Type: ProviderPinecone, Pinecone: &PineconeConfig{}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewProvider() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}
			defer p.Close()
			if p.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestNilProvider(t *testing.T) {
	ctx := context.Background()
	p := NilProvider{}

	err := p.Upsert(ctx, "kb", "id", []float32{1}, nil)
	if !errors.Is(err, ErrNoProvider) {
		t.Errorf("Upsert() error = %v, want ErrNoProvider", err)
	}

	results, err := p.Search(ctx, "kb", []float32{1}, 5)
	if err != nil {
		t.Errorf("Search() error = %v, want nil", err)
	}
	if results != nil {
		t.Errorf("Search() = %v, want nil", results)
	}
}
