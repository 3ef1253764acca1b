package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/metrics"
	"github.com/policy-rag/backend/pkg/logger"
)

// Builder memoises one live index per tier, keyed by the tier and the sorted set of
// source file names. Concurrent requests for the same key share a single build.
type Builder struct {
	embedder Embedder
	group    singleflight.Group

	mu   sync.RWMutex
	live map[domain.Tier]*Index
}

func NewBuilder(embedder Embedder) *Builder {
	return &Builder{
		embedder: embedder,
		live:     make(map[domain.Tier]*Index),
	}
}

// Get returns the live index for tier when it was built from the same file set,
// and builds (and publishes) a new one otherwise.
func (b *Builder) Get(ctx context.Context, tier domain.Tier, chunks []domain.Chunk) (*Index, error) {
	if !tier.Valid() {
		return nil, domain.NewError(domain.ErrInvalidConfiguration, "index.Get", fmt.Errorf("unknown tier %q", tier))
	}

	key := FileSetKey(tier, chunks)
	if idx := b.current(tier, key); idx != nil {
		return idx, nil
	}

	v, err, shared := b.group.Do(key, func() (any, error) {
		if idx := b.current(tier, key); idx != nil {
			return idx, nil
		}

		start := time.Now()
		idx, err := Build(ctx, b.embedder, tier, chunks)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.live[tier] = idx
		b.mu.Unlock()

		elapsed := time.Since(start)
		metrics.IndexBuilds.WithLabelValues(tier.String()).Inc()
		metrics.IndexBuildDuration.WithLabelValues(tier.String()).Observe(elapsed.Seconds())
		metrics.IndexedChunks.WithLabelValues(tier.String()).Set(float64(idx.Len()))

		logger.Info("Index built",
			zap.String("tier", tier.String()),
			zap.String("embedder", b.embedder.Name()),
			zap.Int("files", len(idx.files)),
			zap.Int("chunks", idx.Len()),
			zap.Duration("duration", elapsed),
		)
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debug("Index build shared", zap.String("tier", tier.String()))
	}
	return v.(*Index), nil
}

// Live returns the current index of tier, if any.
func (b *Builder) Live(tier domain.Tier) (*Index, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	idx, ok := b.live[tier]
	return idx, ok
}

// Invalidate drops the live index of tier so the next Get rebuilds it even if the
// file set is unchanged. Other tiers are untouched.
func (b *Builder) Invalidate(tier domain.Tier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.live[tier]; ok {
		delete(b.live, tier)
		metrics.IndexedChunks.WithLabelValues(tier.String()).Set(0)
		logger.Info("Index invalidated", zap.String("tier", tier.String()))
	}
}

func (b *Builder) current(tier domain.Tier, key string) *Index {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if idx, ok := b.live[tier]; ok && idx.key == key {
		return idx
	}
	return nil
}
