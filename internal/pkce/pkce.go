package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/oauth2"
)

// MethodS256 is the only accepted code_challenge_method. The comparison is
// case-sensitive: "s256" and "plain" are both rejected, which closes the
// PKCE downgrade attack.
const MethodS256 = "S256"

// ErrUnsupportedMethod is returned for any method other than exactly "S256".
var ErrUnsupportedMethod = errors.New("unsupported code_challenge_method")

// Verify checks a code_verifier against the stored code_challenge per
// RFC 7636: base64url(SHA-256(verifier)) without padding must equal the
// challenge byte for byte.
func Verify(verifier, challenge, method string) (bool, error) {
	if method != MethodS256 {
		return false, ErrUnsupportedMethod
	}
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]) == challenge, nil
}

// Challenge computes the S256 challenge for a verifier.
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// GeneratePair returns a fresh (verifier, challenge) pair for the upstream
// leg of the federation flow.
func GeneratePair() (verifier, challenge string) {
	verifier = oauth2.GenerateVerifier()
	return verifier, oauth2.S256ChallengeFromVerifier(verifier)
}
