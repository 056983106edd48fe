package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds auth options
type Config interface {
	GetAccessSecret() string
	GetRefreshSecret() string
	GetIssuer() string
	GetAudience() []string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetEmailVerifyTTL() time.Duration
	GetPasswordResetTTL() time.Duration
	GetBcryptCost() int
	GetTOTPIssuer() string
	GetStoreTimeout() time.Duration
	GetRotateRefresh() bool
	GetDeterministicIDs() bool
	GetEnvironment() string
	GetCookieDomain() string
	GetCookieSecure() bool
	GetCookieSameSite() string
}

// PasswordAuthenticator hashes and checks passwords
type PasswordAuthenticator interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// TokenService issues and validates signed session tokens
type TokenService interface {
	Issue(subject string, purpose TokenPurpose, ttl time.Duration) (string, time.Time, error)
	Validate(token string, expected TokenPurpose) (*JWTClaims, error)
}

// Mailer delivers verification and password reset links.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
}

// TokenDenylist tracks revoked token ids until their natural expiry.
type TokenDenylist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// SecretSealer encrypts secrets at rest
type SecretSealer interface {
	Seal(plaintext []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

type noopMailer struct{}

func (noopMailer) SendVerificationEmail(context.Context, string, string) error  { return nil }
func (noopMailer) SendPasswordResetEmail(context.Context, string, string) error { return nil }

type plainSealer struct{}

func (plainSealer) Seal(plaintext []byte) (string, error) { return string(plaintext), nil }
func (plainSealer) Open(sealed string) ([]byte, error)    { return []byte(sealed), nil }

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
