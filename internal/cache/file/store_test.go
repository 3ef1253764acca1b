package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policy-rag/backend/internal/cache"
	"github.com/policy-rag/backend/internal/domain"
)

func entry(key string, mod time.Time, texts ...string) cache.Entry {
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{Text: text, SourceFile: "a.pdf", Index: i, Tier: domain.TierMedium}
	}
	return cache.Entry{Key: key, Chunks: chunks, ModifiedAt: mod}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "chunks.json")
	ctx := context.Background()
	mod := time.Date(2024, 5, 1, 9, 30, 0, 987654321, time.Local)

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, entry("k1", mod, "one", "two")))
	require.NoError(t, s.Close())

	reopened, err := New(path)
	require.NoError(t, err)

	got, ok, err := reopened.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.ModifiedAt.Equal(mod))
	assert.Equal(t, []string{"one", "two"}, []string{got.Chunks[0].Text, got.Chunks[1].Text})

	_, ok, err = reopened.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_CorruptFileStartsEmpty(t *testing.T) {
	tests := map[string]string{
		"garbage":       "{not json",
		"wrong version": `{"version":99,"entries":{"k":{"chunks":[],"modified_at_ns":1}}}`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "chunks.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			s, err := New(path)
			require.NoError(t, err)
			assert.Zero(t, s.Len())

			require.NoError(t, s.Put(context.Background(), entry("k", time.Now(), "x")))
			reopened, err := New(path)
			require.NoError(t, err)
			assert.Equal(t, 1, reopened.Len())
		})
	}
}

func TestStore_MergesWritesFromOtherHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	ctx := context.Background()

	a, err := New(path)
	require.NoError(t, err)
	b, err := New(path)
	require.NoError(t, err)

	require.NoError(t, a.Put(ctx, entry("from-a", time.Now(), "a")))
	require.NoError(t, b.Put(ctx, entry("from-b", time.Now(), "b")))

	c, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestStore_ConcurrentPuts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	s, err := New(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Put(context.Background(), entry(string(rune('a'+i)), time.Now(), "x")))
		}(i)
	}
	wg.Wait()

	reopened, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 16, reopened.Len())
}

func TestStore_Purge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	ctx := context.Background()

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, entry("k", time.Now(), "x")))
	require.NoError(t, s.Purge(ctx))
	assert.Zero(t, s.Len())

	reopened, err := New(path)
	require.NoError(t, err)
	assert.Zero(t, reopened.Len())
}
