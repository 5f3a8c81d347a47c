package authcodes

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is the in-memory Repository used without Mongo and in
// unit tests. Consume holds the mutex across lookup and delete, matching
// the atomicity of the mongo FindOneAndDelete.
type MemoryRepository struct {
	mu    sync.Mutex
	store map[string]*Code
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*Code)}
}

func (m *MemoryRepository) Create(_ context.Context, c *Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.store[c.Code] = &cp
	return nil
}

func (m *MemoryRepository) Consume(_ context.Context, code string) (*Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[code]
	if !ok {
		return nil, nil
	}
	delete(m.store, code)
	cp := *c
	return &cp, nil
}

func (m *MemoryRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, c := range m.store {
		if c.ExpiresAt.Before(now) {
			delete(m.store, k)
			n++
		}
	}
	return n, nil
}
