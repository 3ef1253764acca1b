// Package ingestion turns the PDF directory into tagged chunks, reusing cached chunks
// for files that have not changed since they were last extracted.
package ingestion

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/policy-rag/backend/internal/cache"
	"github.com/policy-rag/backend/internal/chunker"
	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/library"
	"github.com/policy-rag/backend/internal/metrics"
	"github.com/policy-rag/backend/internal/pdf"
	"github.com/policy-rag/backend/pkg/logger"
)

const cacheType = "chunks"

// Report describes one ingestion run. Chunks are ordered by file name, then by
// position within the file.
type Report struct {
	Tier      domain.Tier    `json:"tier"`
	Chunks    []domain.Chunk `json:"-"`
	Files     []string       `json:"files"`
	Reused    []string       `json:"reused"`
	Extracted []string       `json:"extracted"`
	Failed    []FailedFile   `json:"failed"`
	Duration  time.Duration  `json:"duration"`
}

type FailedFile struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// FileStatus tells whether a PDF has fresh cached chunks for a tier.
type FileStatus struct {
	Name       string    `json:"name"`
	Processed  bool      `json:"processed"`
	Stale      bool      `json:"stale"`
	ModifiedAt time.Time `json:"modified_at"`
}

type Pipeline struct {
	extractor pdf.Extractor
	store     cache.Store
}

func NewPipeline(extractor pdf.Extractor, store cache.Store) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		store:     store,
	}
}

// Run ingests every PDF under dir with the chunk parameters of tier.
func (p *Pipeline) Run(ctx context.Context, dir string, tier domain.Tier) (*Report, error) {
	params, err := tier.Params()
	if err != nil {
		return nil, err
	}
	return p.RunWithParams(ctx, dir, tier, params)
}

// RunWithParams is Run with explicit chunk parameters. A missing directory or invalid
// parameters fail the run; a file that cannot be extracted is reported and skipped.
func (p *Pipeline) RunWithParams(ctx context.Context, dir string, tier domain.Tier, params domain.ChunkParams) (*Report, error) {
	start := time.Now()

	ch, err := chunker.New(params.Size, params.Overlap)
	if err != nil {
		return nil, err
	}

	docs, err := library.New(dir).List(ctx)
	if err != nil {
		return nil, err
	}

	logger.Info("Ingestion started",
		zap.String("dir", dir),
		zap.String("tier", tier.String()),
		zap.Int("files", len(docs)),
	)

	report := &Report{Tier: tier}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunks, reused, err := p.processFile(ctx, ch, doc, tier)
		if err != nil {
			logger.Warn("Skipping PDF",
				zap.String("file", doc.Name),
				zap.Error(err),
			)
			report.Failed = append(report.Failed, FailedFile{Name: doc.Name, Error: domain.Describe(err)})
			metrics.DocumentsProcessed.WithLabelValues("failed").Inc()
			continue
		}

		report.Files = append(report.Files, doc.Name)
		report.Chunks = append(report.Chunks, chunks...)
		if reused {
			report.Reused = append(report.Reused, doc.Name)
			metrics.DocumentsProcessed.WithLabelValues("reused").Inc()
		} else {
			report.Extracted = append(report.Extracted, doc.Name)
			metrics.DocumentsProcessed.WithLabelValues("extracted").Inc()
		}
	}

	report.Duration = time.Since(start)
	logger.Info("Ingestion finished",
		zap.String("tier", tier.String()),
		zap.Int("chunks", len(report.Chunks)),
		zap.Int("reused", len(report.Reused)),
		zap.Int("extracted", len(report.Extracted)),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("duration", report.Duration),
	)

	return report, nil
}

func (p *Pipeline) processFile(ctx context.Context, ch *chunker.Chunker, doc library.Document, tier domain.Tier) ([]domain.Chunk, bool, error) {
	key := cache.Key(absPath(doc.Path), ch.Params())

	entry, ok, err := p.store.Get(ctx, key)
	if err != nil {
		logger.Warn("Cache lookup failed", zap.String("file", doc.Name), zap.Error(err))
	}
	if ok && !cache.IsStale(entry, doc.ModifiedAt) {
		metrics.CacheHits.WithLabelValues(cacheType).Inc()
		return retag(entry.Chunks, doc.Name, tier), true, nil
	}
	metrics.CacheMisses.WithLabelValues(cacheType).Inc()

	text, err := p.extractor.Extract(ctx, doc.Path)
	if err != nil {
		return nil, false, err
	}

	chunks := ch.Chunks(text, doc.Name, tier)
	if err := p.store.Put(ctx, cache.Entry{Key: key, Chunks: chunks, ModifiedAt: doc.ModifiedAt}); err != nil {
		logger.Warn("Failed to cache chunks", zap.String("file", doc.Name), zap.Error(err))
	}

	logger.Debug("PDF extracted", zap.String("file", doc.Name), zap.Int("chunks", len(chunks)))
	return chunks, false, nil
}

// Status reports, without extracting anything, which PDFs have fresh cached chunks
// for tier.
func (p *Pipeline) Status(ctx context.Context, dir string, tier domain.Tier) ([]FileStatus, error) {
	params, err := tier.Params()
	if err != nil {
		return nil, err
	}

	docs, err := library.New(dir).List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]FileStatus, 0, len(docs))
	for _, doc := range docs {
		st := FileStatus{Name: doc.Name, ModifiedAt: doc.ModifiedAt}
		entry, ok, err := p.store.Get(ctx, cache.Key(absPath(doc.Path), params))
		if err != nil {
			return nil, fmt.Errorf("failed to read cache: %w", err)
		}
		if ok {
			st.Stale = cache.IsStale(entry, doc.ModifiedAt)
			st.Processed = !st.Stale
		}
		out = append(out, st)
	}
	return out, nil
}

// retag pins cached chunks to the current relative name and tier; the cache key
// already scopes them to the file and parameters.
func retag(chunks []domain.Chunk, name string, tier domain.Tier) []domain.Chunk {
	out := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		c.SourceFile = name
		c.Tier = tier
		c.Index = i
		out[i] = c
	}
	return out
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
