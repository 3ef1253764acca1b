package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("ask: %w", NewError(ErrExternalService, "chat completion", cause))

	assert.ErrorIs(t, err, ErrExternalService)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrInvalidQuery)
	assert.Equal(t, ErrExternalService, KindOf(err))
	assert.Contains(t, err.Error(), "chat completion")
}

func TestKindOf_Unknown(t *testing.T) {
	assert.Nil(t, KindOf(errors.New("plain")))
}

func TestTierParams(t *testing.T) {
	tests := []struct {
		tier    Tier
		size    int
		overlap int
	}{
		{TierLow, 200, 20},
		{TierMedium, 100, 10},
		{TierHigh, 50, 5},
	}

	for _, tc := range tests {
		t.Run(string(tc.tier), func(t *testing.T) {
			p, err := tc.tier.Params()
			require.NoError(t, err)
			assert.Equal(t, tc.size, p.Size)
			assert.Equal(t, tc.overlap, p.Overlap)
			assert.NoError(t, p.Validate())
		})
	}
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" High ")
	require.NoError(t, err)
	assert.Equal(t, TierHigh, tier)

	tier, err = ParseTier("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTier, tier)

	_, err = ParseTier("ultra")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestChunkParams_Validate(t *testing.T) {
	assert.ErrorIs(t, ChunkParams{Size: 10, Overlap: 10}.Validate(), ErrInvalidConfiguration)
	assert.ErrorIs(t, ChunkParams{Size: 0, Overlap: 0}.Validate(), ErrInvalidConfiguration)
	assert.ErrorIs(t, ChunkParams{Size: 10, Overlap: -1}.Validate(), ErrInvalidConfiguration)
	assert.NoError(t, ChunkParams{Size: 10, Overlap: 9}.Validate())
}

func TestDescribe_OmitsCause(t *testing.T) {
	err := NewError(ErrExtraction, "pdf.Extract", errors.New("failed to open /srv/policies/a.pdf"))
	assert.Equal(t, "extraction error", Describe(err))
	assert.Equal(t, "internal error", Describe(errors.New("/srv/policies/a.pdf: boom")))
	assert.Empty(t, Describe(nil))
}
