package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BackupCodes stores hashed 2FA recovery codes. Codes from an unconfirmed
// enrollment are kept apart as pending and never redeem a login.
type BackupCodes interface {
	ReplacePending(ctx context.Context, userID uuid.UUID, hashes []string) error
	ReplacePendingTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, hashes []string) error
	ActivatePendingTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
	Consume(ctx context.Context, userID uuid.UUID, hash string) (bool, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, hash string) (bool, error)
	Count(ctx context.Context, userID uuid.UUID) (int, error)
}

type backupCodes struct {
	db      *bun.DB
	timeout time.Duration
}

var _ BackupCodes = (*backupCodes)(nil)

func NewBackupCodesRepository(db *bun.DB, timeout time.Duration) BackupCodes {
	return &backupCodes{db: db, timeout: timeout}
}

func (r *backupCodes) ReplacePending(ctx context.Context, userID uuid.UUID, hashes []string) error {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return r.ReplacePendingTx(ctx, tx, userID, hashes)
	})
	return storeError(err, "backup_codes.replace_pending")
}

// ReplacePendingTx swaps the pending set of the user. Active codes keep
// working until ActivatePendingTx runs.
func (r *backupCodes) ReplacePendingTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, hashes []string) error {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	_, err := tx.NewDelete().
		Model((*BackupCode)(nil)).
		Where("user_id = ?", userID).
		Where("pending = ?", true).
		Exec(ctx)
	if err != nil {
		return storeError(err, "backup_codes.delete_pending")
	}

	if len(hashes) == 0 {
		return nil
	}

	now := time.Now().UTC()
	records := make([]*BackupCode, 0, len(hashes))
	for _, h := range hashes {
		records = append(records, &BackupCode{
			ID:        uuid.New(),
			UserID:    userID,
			CodeHash:  h,
			Pending:   true,
			CreatedAt: &now,
		})
	}

	if _, err := tx.NewInsert().Model(&records).Exec(ctx); err != nil {
		return storeError(err, "backup_codes.insert_pending")
	}

	return nil
}

// ActivatePendingTx drops the active codes and promotes the pending ones
func (r *backupCodes) ActivatePendingTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	_, err := tx.NewDelete().
		Model((*BackupCode)(nil)).
		Where("user_id = ?", userID).
		Where("pending = ?", false).
		Exec(ctx)
	if err != nil {
		return storeError(err, "backup_codes.delete_active")
	}

	_, err = tx.NewUpdate().
		Model((*BackupCode)(nil)).
		Set("pending = ?", false).
		Where("user_id = ?", userID).
		Where("pending = ?", true).
		Exec(ctx)
	return storeError(err, "backup_codes.activate")
}

func (r *backupCodes) Consume(ctx context.Context, userID uuid.UUID, hash string) (bool, error) {
	return r.ConsumeTx(ctx, r.db, userID, hash)
}

// ConsumeTx deletes the matching active code in one conditional statement.
// Only the caller whose delete affected the row gets true.
func (r *backupCodes) ConsumeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, hash string) (bool, error) {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	res, err := tx.NewDelete().
		Model((*BackupCode)(nil)).
		Where("user_id = ?", userID).
		Where("code_hash = ?", hash).
		Where("pending = ?", false).
		Exec(ctx)
	if err != nil {
		return false, storeError(err, "backup_codes.consume")
	}

	n, err := rowsAffected(res, "backup_codes.consume")
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

// Count reports the active codes left
func (r *backupCodes) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.db.NewSelect().
		Model((*BackupCode)(nil)).
		Where("user_id = ?", userID).
		Where("pending = ?", false).
		Count(ctx)
	if err != nil {
		return 0, storeError(err, "backup_codes.count")
	}
	return n, nil
}
