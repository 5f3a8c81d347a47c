// Package authcodes stores single-use authorization codes. Consumption
// deletes the record atomically before anything is validated, which is what
// makes redemption at-most-once under concurrent requests.
package authcodes

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Code is a single-use grant binding a user, a client and the PKCE
// challenge the eventual token request must answer.
type Code struct {
	Code                string    `bson:"_id" json:"code"`
	ClientID            string    `bson:"clientId" json:"clientId"`
	UserID              string    `bson:"userId" json:"userId"`
	RedirectURI         string    `bson:"redirectUri" json:"redirectUri"`
	CodeChallenge       string    `bson:"codeChallenge" json:"codeChallenge"`
	CodeChallengeMethod string    `bson:"codeChallengeMethod" json:"codeChallengeMethod"`
	Scope               string    `bson:"scope" json:"scope"`
	Nonce               string    `bson:"nonce,omitempty" json:"nonce,omitempty"`
	ExpiresAt           time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt           time.Time `bson:"createdAt" json:"createdAt"`
}

// Repository persists authorization codes.
//
// Consume must atomically delete the record and return its prior value, or
// nil when absent. Among concurrent calls for the same code exactly one
// receives the record; every other caller observes nil and fails closed.
type Repository interface {
	Create(ctx context.Context, c *Code) error
	Consume(ctx context.Context, code string) (*Code, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Issuance holds everything a new code is bound to.
type Issuance struct {
	ClientID            string
	UserID              string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Scope               string
	Nonce               string
}

// Service mints and redeems codes against a Repository.
type Service struct {
	repo Repository
	ttl  time.Duration
}

func NewService(r Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{repo: r, ttl: ttl}
}

// Issue creates a fresh unguessable code.
func (s *Service) Issue(ctx context.Context, in Issuance) (*Code, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	c := &Code{
		Code:                hex.EncodeToString(b),
		ClientID:            in.ClientID,
		UserID:              in.UserID,
		RedirectURI:         in.RedirectURI,
		CodeChallenge:       in.CodeChallenge,
		CodeChallengeMethod: in.CodeChallengeMethod,
		Scope:               in.Scope,
		Nonce:               in.Nonce,
		ExpiresAt:           now.Add(s.ttl),
		CreatedAt:           now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Consume burns the code and returns its record, or nil when it never
// existed or was already redeemed.
func (s *Service) Consume(ctx context.Context, code string) (*Code, error) {
	return s.repo.Consume(ctx, code)
}

func (s *Service) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, now)
}
