// Package index builds in-memory vector indexes over chunk sets and keeps exactly one
// live index per precision tier.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/policy-rag/backend/internal/domain"
)

// Hit is a chunk returned by Search with its cosine similarity to the query.
type Hit struct {
	Chunk domain.Chunk `json:"chunk"`
	Score float64      `json:"score"`
}

// Index is immutable once built and safe for concurrent searches.
type Index struct {
	key     string
	tier    domain.Tier
	files   []string
	chunks  []domain.Chunk
	vectors [][]float64
	encoder Encoder
}

// Build embeds every chunk. The chunks are copied.
func Build(ctx context.Context, embedder Embedder, tier domain.Tier, chunks []domain.Chunk) (*Index, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	encoder, err := embedder.Fit(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to fit %s embedder: %w", embedder.Name(), err)
	}

	var vectors [][]float64
	if len(texts) > 0 {
		vectors, err = encoder.Encode(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
	}

	return &Index{
		key:     FileSetKey(tier, chunks),
		tier:    tier,
		files:   fileSet(chunks),
		chunks:  append([]domain.Chunk(nil), chunks...),
		vectors: vectors,
		encoder: encoder,
	}, nil
}

// Search returns up to topK chunks with positive similarity, best first. Ties keep
// corpus order.
func (i *Index) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	if len(i.chunks) == 0 {
		return nil, nil
	}

	qv, err := i.encoder.Encode(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(qv) != 1 {
		return nil, errors.New("encoder returned no query vector")
	}

	hits := make([]Hit, 0, len(i.chunks))
	for j, v := range i.vectors {
		if score := dot(v, qv[0]); score > 0 {
			hits = append(hits, Hit{Chunk: i.chunks[j], Score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (i *Index) Key() string       { return i.key }
func (i *Index) Tier() domain.Tier { return i.tier }
func (i *Index) Files() []string   { return append([]string(nil), i.files...) }
func (i *Index) Len() int          { return len(i.chunks) }

// FileSetKey identifies a (tier, set of source file names) combination. Chunk order
// and per-file chunk counts do not affect it.
func FileSetKey(tier domain.Tier, chunks []domain.Chunk) string {
	return tier.String() + "|" + strings.Join(fileSet(chunks), "\x00")
}

func fileSet(chunks []domain.Chunk) []string {
	seen := make(map[string]struct{})
	var files []string
	for _, c := range chunks {
		if _, ok := seen[c.SourceFile]; ok {
			continue
		}
		seen[c.SourceFile] = struct{}{}
		files = append(files, c.SourceFile)
	}
	sort.Strings(files)
	return files
}
