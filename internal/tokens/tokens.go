package tokens

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/notelab/notelab/backend/idp-service/internal/config"
	"github.com/notelab/notelab/backend/idp-service/internal/models"
)

// ErrInvalidToken covers every verification failure: bad signature, wrong
// issuer, expired, malformed. Callers never learn which.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims is the verified content of a local access token.
type AccessClaims struct {
	Subject  string
	ClientID string
	Scope    string
}

// Service issues and verifies the local issuer's tokens. Access and ID
// tokens are HMAC-signed JWTs (HS256); refresh tokens are opaque random
// values with no structure.
type Service struct {
	issuer     string
	secret     []byte
	accessTTL  time.Duration
	idTTL      time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewService(cfg *config.Config) *Service {
	return &Service{
		issuer:     cfg.Issuer.URL,
		secret:     []byte(cfg.Issuer.Secret),
		accessTTL:  cfg.Issuer.AccessTokenTTL,
		idTTL:      cfg.Issuer.IDTokenTTL,
		refreshTTL: cfg.Issuer.RefreshTokenTTL,
		now:        time.Now,
	}
}

// Issuer returns the configured issuer URL.
func (s *Service) Issuer() string { return s.issuer }

// AccessTokenTTL returns the access token lifetime (for expires_in).
func (s *Service) AccessTokenTTL() time.Duration { return s.accessTTL }

// RefreshTokenTTL returns the refresh token lifetime.
func (s *Service) RefreshTokenTTL() time.Duration { return s.refreshTTL }

// IssueAccessToken mints a short-lived access token. Access tokens carry no
// personal data: the client decodes the ID token for display, the APIs
// authorize with this one.
func (s *Service) IssueAccessToken(u *models.User, clientID, scope string) (string, error) {
	now := s.now().UTC()
	claims := jwt.MapClaims{
		"sub":   u.ID,
		"aud":   clientID,
		"scope": scope,
		"iss":   s.issuer,
		"iat":   now.Unix(),
		"exp":   now.Add(s.accessTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// IssueIDToken mints the identity assertion for the client. The nonce claim
// is omitted entirely when none was supplied, never emitted as an empty
// field.
func (s *Service) IssueIDToken(u *models.User, clientID, nonce string) (string, error) {
	now := s.now().UTC()
	claims := jwt.MapClaims{
		"sub":   u.ID,
		"email": u.Email,
		"name":  u.Name,
		"role":  string(u.Role),
		"aud":   clientID,
		"iss":   s.issuer,
		"iat":   now.Unix(),
		"exp":   now.Add(s.idTTL).Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// NewRefreshToken returns a 256-bit random opaque value, hex encoded.
func (s *Service) NewRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// VerifyAccessToken checks signature, issuer and expiry. The algorithm is
// pinned to HS256: a crafted header claiming "none" or an asymmetric alg is
// rejected before any key material is touched.
func (s *Service) VerifyAccessToken(raw string) (*AccessClaims, error) {
	parsed, err := jwt.Parse(raw,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if _, hasExp := claims["exp"]; !hasExp {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	aud, _ := claims["aud"].(string)
	scope, _ := claims["scope"].(string)
	if sub == "" {
		return nil, ErrInvalidToken
	}
	return &AccessClaims{Subject: sub, ClientID: aud, Scope: scope}, nil
}
