package refreshtokens

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is the in-memory Repository used without Mongo and in
// unit tests.
type MemoryRepository struct {
	mu    sync.Mutex
	store map[string]*Token
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*Token)}
}

func (m *MemoryRepository) Create(_ context.Context, t *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.store[t.Token] = &cp
	return nil
}

func (m *MemoryRepository) Consume(_ context.Context, token string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[token]
	if !ok {
		return nil, nil
	}
	delete(m.store, token)
	cp := *t
	return &cp, nil
}

func (m *MemoryRepository) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, token)
	return nil
}

func (m *MemoryRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, t := range m.store {
		if t.UserID == userID {
			delete(m.store, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, t := range m.store {
		if t.ExpiresAt.Before(now) {
			delete(m.store, k)
			n++
		}
	}
	return n, nil
}
