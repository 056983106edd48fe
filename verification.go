package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// VerificationTokenBytes random bytes per token before encoding
	VerificationTokenBytes = 32
	// DefaultEmailVerifyTTL lifetime of email verification links
	DefaultEmailVerifyTTL = 24 * time.Hour
	// DefaultPasswordResetTTL lifetime of password reset links
	DefaultPasswordResetTTL = time.Hour
)

// VerificationManager issues and consumes single use tokens. Only a hash of
// each token is stored.
type VerificationManager struct {
	repo RepositoryManager
	now  func() time.Time
}

func NewVerificationManager(repo RepositoryManager) *VerificationManager {
	return &VerificationManager{
		repo: repo,
		now:  time.Now,
	}
}

// WithClock overrides the time source used for expiry
func (m *VerificationManager) WithClock(now func() time.Time) *VerificationManager {
	if now != nil {
		m.now = now
	}
	return m
}

// Issue stores a new token for userID and returns the plaintext once
func (m *VerificationManager) Issue(ctx context.Context, userID uuid.UUID, purpose VerificationPurpose, ttl time.Duration) (string, error) {
	return m.IssueTx(ctx, nil, userID, purpose, ttl)
}

// IssueTx is Issue inside a caller owned transaction, a nil tx uses the
// default connection.
func (m *VerificationManager) IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose VerificationPurpose, ttl time.Duration) (string, error) {
	if !purpose.Valid() {
		return "", NewValidationError("unknown verification purpose").
			WithMetadata(map[string]any{"purpose": string(purpose)})
	}
	if ttl <= 0 {
		return "", NewValidationError("verification ttl must be positive")
	}

	token, err := randomToken(VerificationTokenBytes)
	if err != nil {
		return "", WrapInfrastructure(err, "failed to generate verification token")
	}

	record := &VerificationToken{
		TokenHash: hashSecret(token),
		UserID:    userID,
		Purpose:   purpose,
		ExpiresAt: m.now().Add(ttl),
	}

	if tx == nil {
		err = m.repo.VerificationTokens().Create(ctx, record)
	} else {
		err = m.repo.VerificationTokens().CreateTx(ctx, tx, record)
	}
	if err != nil {
		return "", err
	}

	return token, nil
}

// Consume redeems token for purpose and returns its user. The row is gone
// after the first call whatever the outcome, so a token can never be
// redeemed twice.
func (m *VerificationManager) Consume(ctx context.Context, token string, purpose VerificationPurpose) (uuid.UUID, error) {
	return m.ConsumeTx(ctx, nil, token, purpose)
}

func (m *VerificationManager) ConsumeTx(ctx context.Context, tx bun.IDB, token string, purpose VerificationPurpose) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, ErrVerificationTokenInvalid
	}

	var (
		record *VerificationToken
		err    error
	)

	if tx == nil {
		record, err = m.repo.VerificationTokens().Consume(ctx, hashSecret(token), purpose)
	} else {
		record, err = m.repo.VerificationTokens().ConsumeTx(ctx, tx, hashSecret(token), purpose)
	}

	if err != nil {
		if IsRecordNotFound(err) {
			return uuid.Nil, ErrVerificationTokenInvalid
		}
		return uuid.Nil, err
	}

	if !m.now().Before(record.ExpiresAt) {
		return uuid.Nil, ErrVerificationTokenExpired
	}

	return record.UserID, nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// hashSecret is the storage form of tokens and backup codes. They carry
// enough entropy that a fast hash is sufficient.
func hashSecret(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
