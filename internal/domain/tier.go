package domain

import (
	"fmt"
	"strings"
)

// Tier selects the retrieval granularity. Each tier has its own cache namespace and
// its own vector index.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// ChunkParams is a chunk window size and the overlap between consecutive windows,
// both counted in tokens.
type ChunkParams struct {
	Size    int `json:"chunk_size"`
	Overlap int `json:"overlap_size"`
}

func (p ChunkParams) Validate() error {
	if p.Size <= 0 {
		return NewError(ErrInvalidConfiguration, "chunk params", fmt.Errorf("chunk size must be positive, got %d", p.Size))
	}
	if p.Overlap < 0 {
		return NewError(ErrInvalidConfiguration, "chunk params", fmt.Errorf("overlap must not be negative, got %d", p.Overlap))
	}
	if p.Overlap >= p.Size {
		return NewError(ErrInvalidConfiguration, "chunk params", fmt.Errorf("overlap %d must be smaller than chunk size %d", p.Overlap, p.Size))
	}
	return nil
}

var tierParams = map[Tier]ChunkParams{
	TierLow:    {Size: 200, Overlap: 20},
	TierMedium: {Size: 100, Overlap: 10},
	TierHigh:   {Size: 50, Overlap: 5},
}

// Tiers lists every precision tier from coarsest to finest.
func Tiers() []Tier {
	return []Tier{TierLow, TierMedium, TierHigh}
}

func (t Tier) Params() (ChunkParams, error) {
	p, ok := tierParams[t]
	if !ok {
		return ChunkParams{}, NewError(ErrInvalidConfiguration, "tier params", fmt.Errorf("unknown precision tier %q", string(t)))
	}
	return p, nil
}

func (t Tier) Valid() bool {
	_, ok := tierParams[t]
	return ok
}

func (t Tier) String() string {
	return string(t)
}

// ParseTier accepts tier names case-insensitively. An empty name yields the default tier.
func ParseTier(name string) (Tier, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultTier, nil
	}
	t := Tier(name)
	if !t.Valid() {
		return "", NewError(ErrInvalidConfiguration, "parse tier", fmt.Errorf("unknown precision tier %q", name))
	}
	return t, nil
}

const DefaultTier = TierMedium
