package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPurpose separates access tokens from refresh tokens
type TokenPurpose string

const (
	// PurposeAccess short lived token sent on every request
	PurposeAccess TokenPurpose = "access"
	// PurposeRefresh long lived token only accepted by refresh
	PurposeRefresh TokenPurpose = "refresh"
)

// Valid reports whether p is a known purpose
func (p TokenPurpose) Valid() bool {
	return p == PurposeAccess || p == PurposeRefresh
}

// JWTClaims is the payload of every session token
type JWTClaims struct {
	jwt.RegisteredClaims
	UID     string       `json:"uid,omitempty"`
	Purpose TokenPurpose `json:"purpose"`
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// TokenID returns the jti claim
func (c *JWTClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
