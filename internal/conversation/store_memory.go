package conversation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process. Sessions idle for longer than ttl are
// treated as absent and removed by Reap. A zero ttl disables expiry.
type MemoryStore[S any] struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[int64]*Session[S]
}

func NewMemoryStore[S any](ttl time.Duration) *MemoryStore[S] {
	return &MemoryStore[S]{ttl: ttl, now: time.Now, items: make(map[int64]*Session[S])}
}

// WithClock replaces the time source, for tests.
func (m *MemoryStore[S]) WithClock(now func() time.Time) *MemoryStore[S] {
	m.now = now
	return m
}

func (m *MemoryStore[S]) Load(_ context.Context, userID int64) (*Session[S], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[userID]
	if !ok {
		return nil, nil
	}
	if m.expired(s, m.now()) {
		delete(m.items, userID)
		return nil, nil
	}
	return s.clone(), nil
}

func (m *MemoryStore[S]) Save(_ context.Context, s *Session[S]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = m.now()
	m.items[s.UserID] = s.clone()
	return nil
}

func (m *MemoryStore[S]) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, userID)
	return nil
}

// Reap drops expired sessions and returns how many were removed.
func (m *MemoryStore[S]) Reap(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.items {
		if m.expired(s, now) {
			delete(m.items, id)
			n++
		}
	}
	return n
}

func (m *MemoryStore[S]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryStore[S]) expired(s *Session[S], now time.Time) bool {
	return m.ttl > 0 && now.Sub(s.UpdatedAt) > m.ttl
}
