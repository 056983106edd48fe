package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// APIKeys stores sealed provider credentials
type APIKeys interface {
	Create(ctx context.Context, key *APIKey) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*APIKey, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*APIKey, error)
	GetForUserTx(ctx context.Context, tx bun.IDB, id, userID uuid.UUID) (*APIKey, error)
	DeleteTx(ctx context.Context, tx bun.IDB, id, userID uuid.UUID) error
}

type apiKeys struct {
	records repository.Repository[*APIKey]
	db      *bun.DB
	timeout time.Duration
}

var _ APIKeys = (*apiKeys)(nil)

func NewAPIKeysRepository(db *bun.DB, timeout time.Duration) APIKeys {
	records := repository.NewRepository[*APIKey](db, repository.ModelHandlers[*APIKey]{
		NewRecord: func() *APIKey { return &APIKey{} },
		GetID: func(k *APIKey) uuid.UUID {
			if k == nil {
				return uuid.Nil
			}
			return k.ID
		},
		SetID: func(k *APIKey, id uuid.UUID) {
			if k != nil {
				k.ID = id
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
	})
	return &apiKeys{records: records, db: db, timeout: timeout}
}

func (r *apiKeys) Create(ctx context.Context, key *APIKey) error {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	if key.CreatedAt == nil {
		now := time.Now().UTC()
		key.CreatedAt = &now
	}

	if _, err := r.records.CreateTx(ctx, r.db, key); err != nil {
		return repoError(err, "api_keys.create")
	}
	return nil
}

func (r *apiKeys) ListByUser(ctx context.Context, userID uuid.UUID) ([]*APIKey, error) {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	records := make([]*APIKey, 0)
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, storeError(err, "api_keys.list")
	}
	return records, nil
}

// GetForUser loads the key by id and reports a key of another user as
// missing.
func (r *apiKeys) GetForUser(ctx context.Context, id, userID uuid.UUID) (*APIKey, error) {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	record, err := r.records.GetByID(ctx, id.String())
	if err != nil {
		return nil, repoError(err, "api_keys.get")
	}
	if record.UserID != userID {
		return nil, wrapSentinel(ErrRecordNotFound, nil, map[string]any{
			"operation": "api_keys.get",
			"id":        id.String(),
		})
	}
	return record, nil
}

// GetForUserTx is GetForUser scoped to the owner in the query itself
func (r *apiKeys) GetForUserTx(ctx context.Context, tx bun.IDB, id, userID uuid.UUID) (*APIKey, error) {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	record := &APIKey{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, storeError(err, "api_keys.get")
	}
	return record, nil
}

func (r *apiKeys) DeleteTx(ctx context.Context, tx bun.IDB, id, userID uuid.UUID) error {
	ctx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	res, err := tx.NewDelete().
		Model((*APIKey)(nil)).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return storeError(err, "api_keys.delete")
	}

	return affectedOrNotFound(res, "api_keys.delete", map[string]any{"id": id.String()})
}
