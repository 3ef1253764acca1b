package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policy-rag/backend/internal/domain"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(w, " ")
}

func TestNew_InvalidParams(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 5, 8},
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(tc.size, tc.overlap)
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
			assert.Nil(t, c)
		})
	}
}

func TestSplit_Boundaries(t *testing.T) {
	c, err := New(4, 1)
	require.NoError(t, err)

	got := c.Split(words(10))
	assert.Equal(t, []string{
		"w0 w1 w2 w3",
		"w3 w4 w5 w6",
		"w6 w7 w8 w9",
	}, got)
}

func TestSplit_CountMatchesFormula(t *testing.T) {
	params := []domain.ChunkParams{{Size: 4, Overlap: 1}, {Size: 50, Overlap: 5}, {Size: 7, Overlap: 0}, {Size: 3, Overlap: 2}}

	for _, p := range params {
		c, err := New(p.Size, p.Overlap)
		require.NoError(t, err)
		for n := 1; n <= 120; n++ {
			got := c.Split(words(n))
			want := 1
			if n > p.Overlap {
				step := p.Size - p.Overlap
				want = (n - p.Overlap + step - 1) / step
			}
			require.Len(t, got, want, "size=%d overlap=%d n=%d", p.Size, p.Overlap, n)
			assert.Equal(t, want, Count(n, p.Size, p.Overlap))
		}
	}
}

func TestSplit_CoversEveryTokenInOrder(t *testing.T) {
	c, err := New(6, 2)
	require.NoError(t, err)

	text := words(37)
	parts := c.Split(text)

	var rebuilt []string
	for i, part := range parts {
		tokens := strings.Fields(part)
		if i > 0 {
			tokens = tokens[2:]
		}
		rebuilt = append(rebuilt, tokens...)
	}
	assert.Equal(t, strings.Fields(text), rebuilt)
}

func TestSplit_Deterministic(t *testing.T) {
	c, err := ForTier(domain.TierHigh)
	require.NoError(t, err)

	text := words(333)
	assert.Equal(t, c.Split(text), c.Split(text))
}

func TestSplit_EmptyAndShortText(t *testing.T) {
	c, err := New(10, 3)
	require.NoError(t, err)

	assert.Empty(t, c.Split("   \n\t "))
	assert.Equal(t, []string{"only two"}, c.Split("only\n  two"))
}

func TestChunks_TagsSourceAndTier(t *testing.T) {
	c, err := ForTier(domain.TierLow)
	require.NoError(t, err)

	chunks := c.Chunks(words(450), "hr/leave.pdf", domain.TierLow)
	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, "hr/leave.pdf", ch.SourceFile)
		assert.Equal(t, domain.TierLow, ch.Tier)
	}
}
