package sessions

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is the in-memory Repository used without Mongo and in
// unit tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	store map[string]*Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*Session)}
}

func (m *MemoryRepository) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRepository) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, id)
	return nil
}

func (m *MemoryRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.store {
		if s.UserID == userID {
			delete(m.store, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.store {
		if s.ExpiresAt.Before(now) {
			delete(m.store, id)
			n++
		}
	}
	return n, nil
}
