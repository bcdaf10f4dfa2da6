package knowledge

import (
	"fmt"
	"strings"
)

// DefaultChunkSize is the target chunk size in characters.
const DefaultChunkSize = 800

// ChunkConfig controls how documents are split before embedding.
type ChunkConfig struct {
	// Size is the target chunk size in characters (default: 800).
	Size int `yaml:"size,omitempty" json:"size,omitempty" mapstructure:"size"`

	// Overlap is the number of trailing characters repeated at the start
	// of the next chunk, rounded up to whole lines. Zero disables overlap.
	Overlap int `yaml:"overlap,omitempty" json:"overlap,omitempty" mapstructure:"overlap"`
}

// SetDefaults applies default values.
func (c *ChunkConfig) SetDefaults() {
	if c.Size == 0 {
		c.Size = DefaultChunkSize
	}
}

// Validate checks the configuration.
func (c *ChunkConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("chunk overlap cannot be negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("chunk overlap (%d) must be less than chunk size (%d)", c.Overlap, c.Size)
	}
	return nil
}

// Chunk is one piece of a split document.
type Chunk struct {
	Content string
	Index   int
	Total   int
}

// splitChunks splits content into chunks along line boundaries. Chunks
// grow line by line until adding another line would exceed cfg.Size, so
// a single line longer than the target becomes its own oversized chunk
// rather than being cut mid-line.
func splitChunks(content string, cfg ChunkConfig) []Chunk {
	if len(content) <= cfg.Size {
		return []Chunk{{Content: content, Index: 0, Total: 1}}
	}

	lines := strings.SplitAfter(content, "\n")

	var chunks []Chunk
	var b strings.Builder

	flush := func() {
		if b.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{Content: b.String(), Index: len(chunks)})
		tail := ""
		if cfg.Overlap > 0 {
			tail = overlapTail(b.String(), cfg.Overlap)
		}
		b.Reset()
		b.WriteString(tail)
	}

	for _, line := range lines {
		if b.Len() > 0 && b.Len()+len(line) > cfg.Size {
			flush()
		}
		b.WriteString(line)
	}
	flush()

	total := len(chunks)
	for i := range chunks {
		chunks[i].Total = total
	}
	return chunks
}

// overlapTail returns whole trailing lines of s until at least overlap
// characters are collected.
func overlapTail(s string, overlap int) string {
	lines := strings.SplitAfter(s, "\n")
	tail := ""
	for i := len(lines) - 1; i >= 0 && len(tail) < overlap; i-- {
		tail = lines[i] + tail
	}
	return tail
}
