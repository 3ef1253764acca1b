// Package session keeps the per-user question context: the selected precision tier
// and the latest question/answer exchange.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/metrics"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role     `json:"role"`
	Content string   `json:"content"`
	Sources []string `json:"sources,omitempty"`
	Score   float64  `json:"score,omitempty"`
}

type Session struct {
	ID        string      `json:"id"`
	Tier      domain.Tier `json:"tier"`
	Messages  []Message   `json:"messages"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (s *Session) clone() *Session {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	return &c
}

// Manager holds sessions in memory until they are ended or idle longer than the TTL.
// Callers only ever see copies.
type Manager struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := cache.New(ttl, ttl/6)
	c.OnEvicted(func(string, interface{}) {
		metrics.ActiveSessions.Dec()
	})
	return &Manager{cache: c}
}

// Start opens a session on tier. An empty tier selects the default.
func (m *Manager) Start(tier domain.Tier) (*Session, error) {
	if tier == "" {
		tier = domain.DefaultTier
	}
	if !tier.Valid() {
		return nil, domain.NewError(domain.ErrInvalidConfiguration, "session.Start", fmt.Errorf("unknown precision tier %q", tier))
	}

	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		Tier:      tier,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.cache.Set(s.ID, s, cache.DefaultExpiration)
	m.mu.Unlock()
	metrics.ActiveSessions.Inc()

	return s.clone(), nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return s.clone(), nil
}

// SetTier switches the session's tier. The previous exchange stays visible until the
// next question.
func (m *Manager) SetTier(id string, tier domain.Tier) (*Session, error) {
	if !tier.Valid() {
		return nil, domain.NewError(domain.ErrInvalidConfiguration, "session.SetTier", fmt.Errorf("unknown precision tier %q", tier))
	}
	return m.update(id, func(s *Session) {
		s.Tier = tier
	})
}

// RecordExchange replaces the session history with one question and its answer.
func (m *Manager) RecordExchange(id string, question, answer Message) (*Session, error) {
	question.Role = RoleUser
	answer.Role = RoleAssistant
	return m.update(id, func(s *Session) {
		s.Messages = []Message{question, answer}
	})
}

// Reset clears the exchange, as happens when a new question starts.
func (m *Manager) Reset(id string) (*Session, error) {
	return m.update(id, func(s *Session) {
		s.Messages = nil
	})
}

func (m *Manager) End(id string) {
	m.mu.Lock()
	m.cache.Delete(id)
	m.mu.Unlock()
}

func (m *Manager) Count() int {
	return m.cache.ItemCount()
}

func (m *Manager) update(id string, fn func(*Session)) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	fn(s)
	s.UpdatedAt = time.Now()
	m.cache.Set(id, s, cache.DefaultExpiration)
	return s.clone(), nil
}

func (m *Manager) get(id string) (*Session, error) {
	if x, found := m.cache.Get(id); found {
		return x.(*Session), nil
	}
	return nil, domain.NewError(domain.ErrNotFound, "session", fmt.Errorf("session %q", id))
}
