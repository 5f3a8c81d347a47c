// Package oidc decides which issuer an incoming bearer token belongs to and
// verifies it accordingly.
package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/notelab/notelab/backend/idp-service/internal/tokens"
	"github.com/notelab/notelab/backend/idp-service/pkg/middleware"
)

// MultiVerifier accepts tokens from the local issuer or from the trusted
// federated issuer, normalizing both into a middleware.Principal.
//
// Federated tokens are only decoded and expiry-checked, never signature
// verified: the deployment is assumed to trust that provider out of band.
// This is a known weakening of the trust boundary: any caller able to mint
// an unsigned JWT with a matching issuer claim is accepted as federated.
// Hardening would require fetching and caching the upstream JWKS.
type MultiVerifier struct {
	local          *tokens.Service
	upstreamIssuer string
	now            func() time.Time
}

func NewMultiVerifier(local *tokens.Service, upstreamIssuer string) *MultiVerifier {
	return &MultiVerifier{local: local, upstreamIssuer: upstreamIssuer, now: time.Now}
}

// Verify inspects the token's issuer claim without verifying, then routes:
// federated issuer match -> decode + expiry check only; anything else ->
// full local verification against the issuer key.
func (v *MultiVerifier) Verify(ctx context.Context, raw string) (*middleware.Principal, error) {
	claims, err := decodeClaims(raw)
	if err != nil {
		return nil, tokens.ErrInvalidToken
	}

	iss, _ := claims["iss"].(string)
	if v.upstreamIssuer != "" && issuerMatches(iss, v.upstreamIssuer) {
		return v.verifyFederated(claims)
	}

	ac, err := v.local.VerifyAccessToken(raw)
	if err != nil {
		return nil, tokens.ErrInvalidToken
	}
	return &middleware.Principal{
		Subject:  ac.Subject,
		ClientID: ac.ClientID,
		Scope:    ac.Scope,
		Provider: "local",
	}, nil
}

func (v *MultiVerifier) verifyFederated(claims map[string]interface{}) (*middleware.Principal, error) {
	exp, ok := numericClaim(claims["exp"])
	if !ok || v.now().UTC().After(time.Unix(exp, 0)) {
		return nil, tokens.ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, tokens.ErrInvalidToken
	}
	aud, _ := claims["aud"].(string)
	scope, _ := claims["scope"].(string)
	return &middleware.Principal{
		Subject:  sub,
		ClientID: aud,
		Scope:    scope,
		Provider: "federated",
	}, nil
}

func issuerMatches(iss, upstream string) bool {
	return iss != "" && strings.TrimRight(iss, "/") == strings.TrimRight(upstream, "/")
}

// decodeClaims parses the JWT payload without signature verification.
func decodeClaims(raw string) (map[string]interface{}, error) {
	parts := strings.Split(raw, ".")
	if len(parts) < 2 {
		return nil, tokens.ErrInvalidToken
	}
	payload := parts[1]
	// pad base64
	if m := len(payload) % 4; m != 0 {
		payload += strings.Repeat("=", 4-m)
	}
	data, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	var claims map[string]interface{}
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func numericClaim(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
