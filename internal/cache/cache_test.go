package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/policy-rag/backend/internal/domain"
)

func TestKey_DistinctPerTier(t *testing.T) {
	seen := map[string]domain.Tier{}
	for _, tier := range domain.Tiers() {
		p, _ := tier.Params()
		k := Key("/pdfs/leave.pdf", p)
		_, dup := seen[k]
		assert.False(t, dup, "tier %s collides", tier)
		seen[k] = tier
	}

	p, _ := domain.TierLow.Params()
	assert.Equal(t, Key("/pdfs/leave.pdf", p), Key("/pdfs/leave.pdf", p))
	assert.NotEqual(t, Key("/pdfs/leave.pdf", p), Key("/pdfs/other.pdf", p))
}

func TestIsStale(t *testing.T) {
	mod := time.Date(2024, 3, 1, 10, 0, 0, 500, time.UTC)
	entry := &Entry{ModifiedAt: mod}

	assert.False(t, IsStale(entry, mod))
	assert.False(t, IsStale(entry, mod.Add(-time.Second)))
	assert.True(t, IsStale(entry, mod.Add(time.Nanosecond)))
}

func TestRecord_RoundTripsTimestamp(t *testing.T) {
	mod := time.Date(2024, 3, 1, 10, 0, 0, 123456789, time.UTC)
	entry := Entry{Key: "k", ModifiedAt: mod, Chunks: []domain.Chunk{{Text: "a", SourceFile: "a.pdf"}}}

	back := entry.Record().Entry("k")
	assert.True(t, back.ModifiedAt.Equal(mod))
	assert.Equal(t, entry.Chunks, back.Chunks)
}
