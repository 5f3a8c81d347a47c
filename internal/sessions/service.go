package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service wraps repository operations with business logic
type Service struct {
	repo Repository
	ttl  time.Duration
}

func NewService(r Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{repo: r, ttl: ttl}
}

// Create stores a new login session and returns its opaque id.
func (s *Service) Create(ctx context.Context, userID string) (string, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(s.ttl),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return "", err
	}
	return sess.ID, nil
}

// Get returns the session if it exists and has not expired. Expired records
// are deleted on sight (lazy expiry) and reported as missing.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if time.Now().UTC().After(sess.ExpiresAt) {
		_ = s.repo.DeleteByID(ctx, id)
		return nil, nil
	}
	return sess, nil
}

// Delete removes a session. Idempotent: deleting an absent id is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.repo.DeleteByID(ctx, id)
}

// DeleteForUser removes every session owned by the user (password-change
// invalidation).
func (s *Service) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	return s.repo.DeleteByUser(ctx, userID)
}

// TTL returns the configured session lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }
