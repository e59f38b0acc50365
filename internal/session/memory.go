package session

import (
	"context"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// MemoryStore keeps sessions in process memory. Expired sessions are dropped lazily
// on access and by Sweep.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	window   int
	ttl      time.Duration
	now      func() time.Time
}

type memorySession struct {
	turns   []models.Turn
	expires time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// NewMemoryStore creates a store keeping window turns for ttl after the last append.
func NewMemoryStore(window int, ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	if window <= 0 {
		window = DefaultWindow
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &MemoryStore{
		sessions: make(map[string]*memorySession),
		window:   window,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) History(ctx context.Context, sessionID string) ([]models.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	if !m.now().Before(s.expires) {
		delete(m.sessions, sessionID)
		return nil, nil
	}
	return append([]models.Turn(nil), s.turns...), nil
}

func (m *MemoryStore) Append(ctx context.Context, sessionID string, turns ...models.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	s, ok := m.sessions[sessionID]
	if !ok || !now.Before(s.expires) {
		s = &memorySession{}
		m.sessions[sessionID] = s
	}
	s.turns = trim(append(s.turns, turns...), m.window)
	s.expires = now.Add(m.ttl)
	return nil
}

// Sweep removes expired sessions and returns how many were dropped.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, s := range m.sessions {
		if !now.Before(s.expires) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of sessions held, including expired ones not yet swept.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
