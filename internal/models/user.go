package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role controls access to the admin API. Roles never auto-escalate; a
// federated login keeps whatever role the local user already has.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// CredentialKind discriminates how a user authenticates locally.
type CredentialKind string

const (
	// CredentialPassword means a bcrypt hash is stored and password login works.
	CredentialPassword CredentialKind = "password"
	// CredentialFederated means the account was created by an upstream login
	// and has no local password until the user explicitly sets one.
	CredentialFederated CredentialKind = "federated"
)

// Credential is an explicit variant instead of a magic sentinel in the hash
// column, so callers can never feed the sentinel into a hash comparison.
type Credential struct {
	Kind CredentialKind `bson:"kind" json:"kind"`
	Hash string         `bson:"hash,omitempty" json:"-"`
}

// LocalPassword builds a password credential from a bcrypt hash.
func LocalPassword(hash string) Credential {
	return Credential{Kind: CredentialPassword, Hash: hash}
}

// FederatedOnly builds the credential for accounts without a local password.
func FederatedOnly() Credential {
	return Credential{Kind: CredentialFederated}
}

// CheckPassword reports whether the given password matches. Always false for
// federated-only accounts.
func (c Credential) CheckPassword(password string) bool {
	if c.Kind != CredentialPassword || c.Hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.Hash), []byte(password)) == nil
}

// User is a local identity record. ID is the stable subject identifier used
// in token claims.
type User struct {
	ID         string     `bson:"_id,omitempty" json:"id"`
	Email      string     `bson:"email" json:"email"`
	Name       string     `bson:"name" json:"name"`
	Credential Credential `bson:"credential" json:"-"`
	Role       Role       `bson:"role" json:"role"`
	CreatedAt  time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// FederatedIdentity links (provider, upstream subject) to a local user.
// The pair is unique; repeated logins by the same upstream identity reuse
// the existing link.
type FederatedIdentity struct {
	Provider  string    `bson:"provider" json:"provider"`
	Subject   string    `bson:"subject" json:"subject"`
	UserID    string    `bson:"userId" json:"userId"`
	Email     string    `bson:"email" json:"email"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
