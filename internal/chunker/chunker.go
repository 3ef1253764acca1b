// Package chunker splits extracted document text into overlapping word windows.
package chunker

import (
	"strings"

	"github.com/policy-rag/backend/internal/domain"
)

// Chunker produces windows of Size whitespace-separated tokens. Window i starts at
// token i*(Size-Overlap); the final window may be shorter.
type Chunker struct {
	params domain.ChunkParams
}

func New(size, overlap int) (*Chunker, error) {
	params := domain.ChunkParams{Size: size, Overlap: overlap}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{params: params}, nil
}

func ForTier(tier domain.Tier) (*Chunker, error) {
	params, err := tier.Params()
	if err != nil {
		return nil, err
	}
	return New(params.Size, params.Overlap)
}

func (c *Chunker) Params() domain.ChunkParams {
	return c.params
}

// Split returns the text windows. Text with no tokens yields no windows.
func (c *Chunker) Split(text string) []string {
	words := strings.Fields(text)
	n := len(words)
	if n == 0 {
		return nil
	}

	step := c.params.Size - c.params.Overlap
	out := make([]string, 0, Count(n, c.params.Size, c.params.Overlap))
	for start := 0; ; start += step {
		end := min(start+c.params.Size, n)
		out = append(out, strings.Join(words[start:end], " "))
		if end == n {
			break
		}
	}
	return out
}

// Chunks splits text and tags every window with its source file and tier.
func (c *Chunker) Chunks(text, sourceFile string, tier domain.Tier) []domain.Chunk {
	parts := c.Split(text)
	chunks := make([]domain.Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = domain.Chunk{
			Text:       part,
			SourceFile: sourceFile,
			Index:      i,
			Tier:       tier,
		}
	}
	return chunks
}

// Count is the number of windows Split yields for n tokens.
func Count(n, size, overlap int) int {
	switch {
	case n == 0:
		return 0
	case n <= overlap:
		return 1
	}
	step := size - overlap
	return (n - overlap + step - 1) / step
}
