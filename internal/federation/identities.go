package federation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/notelab/notelab/backend/idp-service/internal/models"
)

// ErrLinkExists is returned when a create collides with the unique
// (provider, subject) index.
var ErrLinkExists = errors.New("federated identity already linked")

// IdentityRepository persists federated identity links.
type IdentityRepository interface {
	Get(ctx context.Context, provider, subject string) (*models.FederatedIdentity, error)
	Create(ctx context.Context, link *models.FederatedIdentity) error
}

// MongoIdentityRepository implements IdentityRepository with a compound
// unique index on (provider, subject).
type MongoIdentityRepository struct {
	col *mongo.Collection
}

func NewMongoIdentityRepository(col *mongo.Collection) *MongoIdentityRepository {
	return &MongoIdentityRepository{col: col}
}

func (r *MongoIdentityRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "subject", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoIdentityRepository) Get(ctx context.Context, provider, subject string) (*models.FederatedIdentity, error) {
	var link models.FederatedIdentity
	err := r.col.FindOne(ctx, bson.M{"provider": provider, "subject": subject}).Decode(&link)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

func (r *MongoIdentityRepository) Create(ctx context.Context, link *models.FederatedIdentity) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, link)
	if mongo.IsDuplicateKeyError(err) {
		return ErrLinkExists
	}
	return err
}

// MemoryIdentityRepository is the in-memory IdentityRepository.
type MemoryIdentityRepository struct {
	mu    sync.RWMutex
	store map[string]*models.FederatedIdentity
}

func NewMemoryIdentityRepository() *MemoryIdentityRepository {
	return &MemoryIdentityRepository{store: make(map[string]*models.FederatedIdentity)}
}

func identityKey(provider, subject string) string { return provider + "\x00" + subject }

func (m *MemoryIdentityRepository) Get(_ context.Context, provider, subject string) (*models.FederatedIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	link, ok := m.store[identityKey(provider, subject)]
	if !ok {
		return nil, nil
	}
	cp := *link
	return &cp, nil
}

func (m *MemoryIdentityRepository) Create(_ context.Context, link *models.FederatedIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := identityKey(link.Provider, link.Subject)
	if _, exists := m.store[key]; exists {
		return ErrLinkExists
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	cp := *link
	m.store[key] = &cp
	return nil
}
