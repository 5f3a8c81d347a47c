package federation

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidState is returned when the federation_state cookie is missing,
// expired, or fails its signature check.
var ErrInvalidState = errors.New("invalid federation state")

// State is the signed blob round-tripped through the federation_state
// cookie: everything needed to resume the *local* authorization request
// after the upstream hop, plus the upstream PKCE verifier.
type State struct {
	ClientID            string `json:"cid"`
	RedirectURI         string `json:"ruri"`
	CodeChallenge       string `json:"cc"`
	CodeChallengeMethod string `json:"ccm"`
	ClientState         string `json:"st,omitempty"`
	Scope               string `json:"scope,omitempty"`
	Nonce               string `json:"nonce,omitempty"`
	UpstreamVerifier    string `json:"uv"`
	jwt.RegisteredClaims
}

// EncodeState signs the blob as an HS256 JWT with the given lifetime. A JWT
// keeps the cookie tamper-evident without another crypto dependency.
func EncodeState(secret []byte, s *State, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	s.IssuedAt = jwt.NewNumericDate(now)
	s.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, s).SignedString(secret)
}

// DecodeState verifies and parses the state cookie value.
func DecodeState(secret []byte, raw string) (*State, error) {
	var s State
	tok, err := jwt.ParseWithClaims(raw, &s,
		func(t *jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidState
	}
	return &s, nil
}
