package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/notelab/notelab/backend/idp-service/internal/models"
)

// ErrInvalidCredentials is deliberately generic: callers must not learn
// whether the email exists or only the password was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service encapsulates user-related business logic
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service {
	return &Service{repo: r}
}

// Authenticate looks up a user by email and checks the password. Federated
// only accounts fail the same way a wrong password does.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.Credential.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// CreateLocal registers a user with a password credential.
func (s *Service) CreateLocal(ctx context.Context, email, name, password string, role models.Role) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:         uuid.NewString(),
		Email:      email,
		Name:       name,
		Credential: models.LocalPassword(string(hash)),
		Role:       role,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetOrCreateFederated finds a user by email or lazily creates one with the
// federated-only credential. A losing racer on the unique email index
// re-reads and returns the winner's record.
func (s *Service) GetOrCreateFederated(ctx context.Context, email, name string) (*models.User, error) {
	if u, err := s.repo.GetByEmail(ctx, email); err != nil || u != nil {
		return u, err
	}
	u := &models.User{
		ID:         uuid.NewString(),
		Email:      email,
		Name:       name,
		Credential: models.FederatedOnly(),
		Role:       models.RoleUser,
		CreatedAt:  time.Now().UTC(),
	}
	err := s.repo.Create(ctx, u)
	if errors.Is(err, ErrEmailTaken) {
		return s.repo.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// SetPassword replaces the credential with a fresh bcrypt hash. Federated
// only accounts gain a local password this way.
func (s *Service) SetPassword(ctx context.Context, userID, password string) (*models.User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u.Credential = models.LocalPassword(string(hash))
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*models.User, error) {
	return s.repo.List(ctx)
}
