package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policy-rag/backend/internal/domain"
)

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(time.Hour)

	s, err := m.Start("")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultTier, s.Tier)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 1, m.Count())

	s, err = m.SetTier(s.ID, domain.TierHigh)
	require.NoError(t, err)
	assert.Equal(t, domain.TierHigh, s.Tier)

	_, err = m.SetTier(s.ID, domain.Tier("ultra"))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	m.End(s.ID)
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, m.Count())
}

func TestManager_KeepsOnlyLatestExchange(t *testing.T) {
	m := NewManager(time.Hour)
	s, err := m.Start(domain.TierLow)
	require.NoError(t, err)

	_, err = m.RecordExchange(s.ID, Message{Content: "first?"}, Message{Content: "one"})
	require.NoError(t, err)
	s, err = m.RecordExchange(s.ID, Message{Content: "second?"}, Message{Content: "two", Sources: []string{"a.pdf"}, Score: 42})
	require.NoError(t, err)

	require.Len(t, s.Messages, 2)
	assert.Equal(t, Message{Role: RoleUser, Content: "second?"}, s.Messages[0])
	assert.Equal(t, RoleAssistant, s.Messages[1].Role)
	assert.Equal(t, []string{"a.pdf"}, s.Messages[1].Sources)

	s, err = m.Reset(s.ID)
	require.NoError(t, err)
	assert.Empty(t, s.Messages)
}

func TestManager_ReturnsCopies(t *testing.T) {
	m := NewManager(time.Hour)
	s, err := m.Start(domain.TierMedium)
	require.NoError(t, err)

	s.Tier = domain.TierHigh
	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierMedium, got.Tier)
}

func TestManager_Expires(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	s, err := m.Start(domain.TierMedium)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := m.Get(s.ID)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestManager_ConcurrentUpdates(t *testing.T) {
	m := NewManager(time.Hour)
	s, err := m.Start(domain.TierMedium)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tier := domain.Tiers()[i%3]
			_, _ = m.SetTier(s.ID, tier)
			_, _ = m.RecordExchange(s.ID, Message{Content: "q"}, Message{Content: "a"})
		}(i)
	}
	wg.Wait()

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
}
