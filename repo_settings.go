package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SettingsRepository stores one settings row per user
type SettingsRepository interface {
	// Get returns found=false instead of an error when the row is missing.
	Get(ctx context.Context, userID uuid.UUID) (*UserSettings, bool, error)
	GetTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*UserSettings, bool, error)
	Create(ctx context.Context, settings *UserSettings) error
	CreateTx(ctx context.Context, tx bun.IDB, settings *UserSettings) error
	Update(ctx context.Context, settings *UserSettings) error
	UpdateTx(ctx context.Context, tx bun.IDB, settings *UserSettings) error
	ClearSelectedKeyTx(ctx context.Context, tx bun.IDB, userID, keyID uuid.UUID) error
}

type settingsRepo struct {
	db      *bun.DB
	timeout time.Duration
}

var _ SettingsRepository = (*settingsRepo)(nil)

func NewSettingsRepository(db *bun.DB, timeout time.Duration) SettingsRepository {
	return &settingsRepo{db: db, timeout: timeout}
}

func (r *settingsRepo) Get(ctx context.Context, userID uuid.UUID) (*UserSettings, bool, error) {
	return r.GetTx(ctx, r.db, userID)
}

func (r *settingsRepo) GetTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*UserSettings, bool, error) {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	record := &UserSettings{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		err = storeError(err, "settings.get")
		if IsRecordNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return record, true, nil
}

func (r *settingsRepo) Create(ctx context.Context, settings *UserSettings) error {
	return r.CreateTx(ctx, r.db, settings)
}

func (r *settingsRepo) CreateTx(ctx context.Context, tx bun.IDB, settings *UserSettings) error {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	now := time.Now().UTC()
	if settings.CreatedAt == nil {
		settings.CreatedAt = &now
	}
	if settings.UpdatedAt == nil {
		settings.UpdatedAt = &now
	}

	_, err := tx.NewInsert().Model(settings).Exec(ctx)
	return storeError(err, "settings.create")
}

func (r *settingsRepo) Update(ctx context.Context, settings *UserSettings) error {
	return r.UpdateTx(ctx, r.db, settings)
}

func (r *settingsRepo) UpdateTx(ctx context.Context, tx bun.IDB, settings *UserSettings) error {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	now := time.Now().UTC()
	settings.UpdatedAt = &now

	res, err := tx.NewUpdate().
		Model(settings).
		Column("preferred_model", "use_own_api", "selected_key_id", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return storeError(err, "settings.update")
	}

	return affectedOrNotFound(res, "settings.update", map[string]any{"user_id": settings.UserID.String()})
}

func (r *settingsRepo) ClearSelectedKeyTx(ctx context.Context, tx bun.IDB, userID, keyID uuid.UUID) error {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	_, err := tx.NewUpdate().
		Model((*UserSettings)(nil)).
		Set("selected_key_id = NULL").
		Set("use_own_api = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("user_id = ?", userID).
		Where("selected_key_id = ?", keyID).
		Exec(ctx)
	return storeError(err, "settings.clear_selected_key")
}
