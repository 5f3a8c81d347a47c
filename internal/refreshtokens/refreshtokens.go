// Package refreshtokens stores opaque refresh tokens. Rotation is
// delete-on-read: Consume removes the token the moment it is matched, so a
// losing concurrent racer gets nothing even if its request arrived a moment
// after the winner already rotated the value.
package refreshtokens

import (
	"context"
	"time"
)

// Token is an opaque high-entropy bearer secret with no claims.
type Token struct {
	Token     string    `bson:"_id" json:"token"`
	UserID    string    `bson:"userId" json:"userId"`
	ClientID  string    `bson:"clientId" json:"clientId"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Repository persists refresh tokens. Consume has the same atomic
// delete-and-return contract as the authorization code store.
type Repository interface {
	Create(ctx context.Context, t *Token) error
	Consume(ctx context.Context, token string) (*Token, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Service mints and rotates refresh tokens against a Repository.
type Service struct {
	repo Repository
	ttl  time.Duration
}

func NewService(r Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Service{repo: r, ttl: ttl}
}

// Store persists a freshly generated token value for the user/client pair.
func (s *Service) Store(ctx context.Context, value, userID, clientID string) (*Token, error) {
	now := time.Now().UTC()
	t := &Token{
		Token:     value,
		UserID:    userID,
		ClientID:  clientID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Consume burns the token and returns its record, or nil when it never
// existed or was already rotated.
func (s *Service) Consume(ctx context.Context, token string) (*Token, error) {
	return s.repo.Consume(ctx, token)
}

// Delete removes a token (logout). Idempotent.
func (s *Service) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.repo.Delete(ctx, token)
}

// DeleteForUser bulk-invalidates every token of the user (password change).
func (s *Service) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	return s.repo.DeleteByUser(ctx, userID)
}

func (s *Service) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, now)
}
