package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ConsumeVerificationTokenSQL = `DELETE FROM "verification_tokens"
WHERE
	"token_hash" = ?
AND
	"purpose" = ?
RETURNING "token_hash", "user_id", "purpose", "expires_at", "created_at";`

// VerificationTokens stores hashed single use tokens
type VerificationTokens interface {
	Create(ctx context.Context, token *VerificationToken) error
	CreateTx(ctx context.Context, tx bun.IDB, token *VerificationToken) error
	Consume(ctx context.Context, tokenHash string, purpose VerificationPurpose) (*VerificationToken, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, tokenHash string, purpose VerificationPurpose) (*VerificationToken, error)
	DeleteForUser(ctx context.Context, userID uuid.UUID, purpose VerificationPurpose) (int64, error)
	DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose VerificationPurpose) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type verificationTokens struct {
	db      *bun.DB
	timeout time.Duration
}

var _ VerificationTokens = (*verificationTokens)(nil)

func NewVerificationTokensRepository(db *bun.DB, timeout time.Duration) VerificationTokens {
	return &verificationTokens{db: db, timeout: timeout}
}

func (r *verificationTokens) Create(ctx context.Context, token *VerificationToken) error {
	return r.CreateTx(ctx, r.db, token)
}

func (r *verificationTokens) CreateTx(ctx context.Context, tx bun.IDB, token *VerificationToken) error {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	if token.CreatedAt == nil {
		now := time.Now().UTC()
		token.CreatedAt = &now
	}
	token.ExpiresAt = token.ExpiresAt.UTC()

	_, err := tx.NewInsert().Model(token).Exec(ctx)
	return storeError(err, "verification_tokens.create")
}

func (r *verificationTokens) Consume(ctx context.Context, tokenHash string, purpose VerificationPurpose) (*VerificationToken, error) {
	return r.ConsumeTx(ctx, r.db, tokenHash, purpose)
}

// ConsumeTx removes the token and returns the removed row. Expiry is not
// checked here: an expired token is deleted all the same and the caller
// decides what that means.
func (r *verificationTokens) ConsumeTx(ctx context.Context, tx bun.IDB, tokenHash string, purpose VerificationPurpose) (*VerificationToken, error) {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	record := &VerificationToken{}
	if err := tx.NewRaw(ConsumeVerificationTokenSQL, tokenHash, string(purpose)).Scan(ctx, record); err != nil {
		return nil, storeError(err, "verification_tokens.consume")
	}
	return record, nil
}

func (r *verificationTokens) DeleteForUser(ctx context.Context, userID uuid.UUID, purpose VerificationPurpose) (int64, error) {
	return r.DeleteForUserTx(ctx, r.db, userID, purpose)
}

func (r *verificationTokens) DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose VerificationPurpose) (int64, error) {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	res, err := tx.NewDelete().
		Model((*VerificationToken)(nil)).
		Where("user_id = ?", userID).
		Where("purpose = ?", string(purpose)).
		Exec(ctx)
	if err != nil {
		return 0, storeError(err, "verification_tokens.delete_for_user")
	}
	return rowsAffected(res, "verification_tokens.delete_for_user")
}

func (r *verificationTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.NewDelete().
		Model((*VerificationToken)(nil)).
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, storeError(err, "verification_tokens.delete_expired")
	}
	return rowsAffected(res, "verification_tokens.delete_expired")
}
