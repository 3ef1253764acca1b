package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/policy-rag/backend/internal/domain"
)

const (
	EmbedderTFIDF  = "tfidf"
	EmbedderOpenAI = "openai"
)

// Embedder fits a vector space to a corpus. Fit must not retain the corpus slice.
type Embedder interface {
	Name() string
	Fit(ctx context.Context, corpus []string) (Encoder, error)
}

// Encoder maps texts into the space produced by Fit. Vectors are L2-normalised so a
// dot product is the cosine similarity.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float64, error)
}

// TFIDF is an offline embedder whose vocabulary is the sorted set of corpus terms.
type TFIDF struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewTFIDF() *TFIDF {
	return &TFIDF{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

func (e *TFIDF) Name() string { return EmbedderTFIDF }

func (e *TFIDF) Fit(_ context.Context, corpus []string) (Encoder, error) {
	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range e.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	enc := &tfidfEncoder{
		embedder:   e,
		vocabulary: make(map[string]int, len(terms)),
		idf:        make([]float64, len(terms)),
	}
	n := float64(len(corpus))
	for i, term := range terms {
		enc.vocabulary[term] = i
		enc.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	return enc, nil
}

func (e *TFIDF) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := e.stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

type tfidfEncoder struct {
	embedder   *TFIDF
	vocabulary map[string]int
	idf        []float64
}

func (t *tfidfEncoder) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = t.encode(text)
	}
	return out, nil
}

func (t *tfidfEncoder) encode(text string) []float64 {
	vec := make([]float64, len(t.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range t.embedder.tokenize(text) {
		if idx, ok := t.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec
	}
	for idx, count := range tf {
		vec[idx] = float64(count) / float64(total) * t.idf[idx]
	}
	normalize(vec)
	return vec
}

// EmbeddingClient is the subset of the model client the OpenAI embedder needs.
type EmbeddingClient interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAI embeds through the hosted embeddings endpoint. It needs no fitting.
type OpenAI struct {
	client EmbeddingClient
}

func NewOpenAI(client EmbeddingClient) *OpenAI {
	return &OpenAI{client: client}
}

func (e *OpenAI) Name() string { return EmbedderOpenAI }

func (e *OpenAI) Fit(context.Context, []string) (Encoder, error) {
	return e, nil
}

func (e *OpenAI) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	raw, err := e.client.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(texts) {
		return nil, domain.NewError(domain.ErrExternalService, "index.Encode",
			fmt.Errorf("got %d vectors for %d texts", len(raw), len(texts)))
	}
	out := make([][]float64, len(raw))
	for i, v := range raw {
		vec := make([]float64, len(v))
		for j, x := range v {
			vec[j] = float64(x)
		}
		normalize(vec)
		out[i] = vec
	}
	return out, nil
}

// NewEmbedder returns the embedder named by kind.
func NewEmbedder(kind string, client EmbeddingClient) (Embedder, error) {
	switch strings.ToLower(kind) {
	case "", EmbedderTFIDF:
		return NewTFIDF(), nil
	case EmbedderOpenAI:
		if client == nil {
			return nil, domain.NewError(domain.ErrInvalidConfiguration, "index.NewEmbedder",
				errors.New("openai embedder requires a model client"))
		}
		return NewOpenAI(client), nil
	default:
		return nil, domain.NewError(domain.ErrInvalidConfiguration, "index.NewEmbedder",
			fmt.Errorf("unknown embedder %q", kind))
	}
}

func normalize(vec []float64) {
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] /= norm
	}
}

func dot(a, b []float64) float64 {
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now", "what", "which", "who", "how", "do", "does", "i", "my", "me", "we",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
