package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policy-rag/backend/internal/cache"
	"github.com/policy-rag/backend/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestClient_PutGet(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	mod := time.Date(2023, 3, 1, 0, 0, 0, 42, time.UTC)

	err := c.Put(ctx, cache.Entry{
		Key:        "abc",
		ModifiedAt: mod,
		Chunks:     []domain.Chunk{{Text: "leave entitlements", SourceFile: "hr/leave.pdf", Tier: domain.TierHigh}},
	})
	require.NoError(t, err)
	assert.True(t, mr.Exists("chunks:abc"))

	got, ok, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.ModifiedAt.Equal(mod))
	assert.Equal(t, "hr/leave.pdf", got.Chunks[0].SourceFile)
}

func TestClient_MissAndCorruptValue(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "none")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mr.Set("chunks:bad", "{{{"))
	_, ok, err = c.Get(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_Purge(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, cache.Entry{Key: "a"}))
	require.NoError(t, c.Put(ctx, cache.Entry{Key: "b"}))
	require.NoError(t, mr.Set("session:keep", "1"))

	require.NoError(t, c.Purge(ctx))
	assert.False(t, mr.Exists("chunks:a"))
	assert.False(t, mr.Exists("chunks:b"))
	assert.True(t, mr.Exists("session:keep"))
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(addr, "", 0)
	assert.Error(t, err)
}
