package tokens

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/notelab/notelab/backend/idp-service/internal/config"
	"github.com/notelab/notelab/backend/idp-service/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Issuer: config.IssuerConfig{
			URL:             "http://localhost:5002",
			Secret:          "test-secret-test-secret-test-secret",
			AccessTokenTTL:  120 * time.Second,
			IDTokenTTL:      time.Hour,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
	}
}

func testUser() *models.User {
	return &models.User{ID: "user-1", Email: "a@example.com", Name: "Alice", Role: models.RoleAdmin}
}

func decodePayload(t *testing.T, token string) map[string]interface{} {
	t.Helper()
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected a three-part JWT, got %d parts", len(parts))
	}
	b, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	var claims map[string]interface{}
	if err := json.Unmarshal(b, &claims); err != nil {
		t.Fatalf("payload unmarshal: %v", err)
	}
	return claims
}

func TestAccessTokenCarriesNoPersonalClaims(t *testing.T) {
	svc := NewService(testConfig())
	tok, err := svc.IssueAccessToken(testUser(), "taskapp", "openid profile email")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims := decodePayload(t, tok)
	for _, forbidden := range []string{"email", "name", "role", "passwordHash"} {
		if _, present := claims[forbidden]; present {
			t.Fatalf("access token must not carry %q", forbidden)
		}
	}
	if claims["sub"] != "user-1" || claims["aud"] != "taskapp" || claims["iss"] != "http://localhost:5002" {
		t.Fatalf("unexpected claims: %v", claims)
	}
	if claims["scope"] != "openid profile email" {
		t.Fatalf("scope claim missing: %v", claims)
	}
}

func TestIDTokenClaims(t *testing.T) {
	svc := NewService(testConfig())
	tok, err := svc.IssueIDToken(testUser(), "taskapp", "nonce-123")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims := decodePayload(t, tok)
	if claims["email"] != "a@example.com" || claims["name"] != "Alice" || claims["role"] != "admin" {
		t.Fatalf("identity claims missing: %v", claims)
	}
	if claims["nonce"] != "nonce-123" {
		t.Fatalf("nonce not carried: %v", claims)
	}
	if _, present := claims["passwordHash"]; present {
		t.Fatalf("id token must never expose the credential")
	}
}

func TestIDTokenOmitsNonceWhenEmpty(t *testing.T) {
	svc := NewService(testConfig())
	tok, err := svc.IssueIDToken(testUser(), "taskapp", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims := decodePayload(t, tok)
	if _, present := claims["nonce"]; present {
		t.Fatalf("nonce must be omitted entirely when not supplied, got %v", claims["nonce"])
	}
}

func TestVerifyAccessTokenRoundTrip(t *testing.T) {
	svc := NewService(testConfig())
	tok, err := svc.IssueAccessToken(testUser(), "taskapp", "openid")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := svc.VerifyAccessToken(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Subject != "user-1" || got.ClientID != "taskapp" || got.Scope != "openid" {
		t.Fatalf("unexpected claims: %+v", got)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	svc := NewService(testConfig())
	tok, err := svc.IssueAccessToken(testUser(), "taskapp", "openid")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(3 * time.Minute) }
	if _, err := svc.VerifyAccessToken(tok); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	cfg := testConfig()
	svc := NewService(cfg)

	other := testConfig()
	other.Issuer.URL = "http://evil.example"
	tok, err := NewService(other).IssueAccessToken(testUser(), "taskapp", "openid")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.VerifyAccessToken(tok); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for wrong issuer, got %v", err)
	}
}

func TestVerifyRejectsAlgNone(t *testing.T) {
	svc := NewService(testConfig())
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": "user-1",
		"iss": "http://localhost:5002",
		"iat": now.Unix(),
		"exp": now.Add(time.Minute).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("craft none token: %v", err)
	}
	if _, err := svc.VerifyAccessToken(tok); err != ErrInvalidToken {
		t.Fatalf("alg none must be rejected, got %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	svc := NewService(testConfig())
	other := testConfig()
	other.Issuer.Secret = "a-completely-different-secret-value"
	tok, err := NewService(other).IssueAccessToken(testUser(), "taskapp", "openid")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.VerifyAccessToken(tok); err != ErrInvalidToken {
		t.Fatalf("foreign signature must be rejected, got %v", err)
	}
}

func TestNewRefreshTokenShape(t *testing.T) {
	svc := NewService(testConfig())
	a, err := svc.NewRefreshToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, _ := svc.NewRefreshToken()
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == b {
		t.Fatalf("two refresh tokens must never collide")
	}
	if strings.Contains(a, ".") {
		t.Fatalf("refresh token must be opaque, not a JWT: %s", a)
	}
}
