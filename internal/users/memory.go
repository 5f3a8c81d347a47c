package users

import (
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/notelab/notelab/backend/idp-service/internal/models"
)

// MemoryRepository is the in-memory Repository used when Mongo is not
// configured and by unit tests. Email uniqueness is enforced under the
// mutex, mirroring the unique index of the mongo store.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

func (m *MemoryRepository) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byEmail[u.Email]; taken {
		return ErrEmailTaken
	}
	cp := *u
	m.byID[cp.ID] = &cp
	m.byEmail[cp.Email] = cp.ID
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, nil
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *MemoryRepository) Update(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.byID[u.ID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	if old.Email != u.Email {
		if _, taken := m.byEmail[u.Email]; taken {
			return ErrEmailTaken
		}
		delete(m.byEmail, old.Email)
		m.byEmail[u.Email] = u.ID
	}
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *MemoryRepository) List(_ context.Context) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.User, 0, len(m.byID))
	for _, u := range m.byID {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
