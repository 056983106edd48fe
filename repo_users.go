package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)

	Create(ctx context.Context, user *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	MarkEmailVerified(ctx context.Context, id uuid.UUID) error
	MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error

	SetPendingTwoFactorSecret(ctx context.Context, id uuid.UUID, sealedSecret string) error
	SetPendingTwoFactorSecretTx(ctx context.Context, tx bun.IDB, id uuid.UUID, sealedSecret string) error
	ActivateTwoFactor(ctx context.Context, id uuid.UUID, sealedSecret string) error
	ActivateTwoFactorTx(ctx context.Context, tx bun.IDB, id uuid.UUID, sealedSecret string) error
}

type users struct {
	repository.Repository[*User]
	db      *bun.DB
	timeout time.Duration
	now     func() time.Time
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB, timeout time.Duration) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
		timeout:    timeout,
		now:        time.Now,
	}
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	ctx, cancel := withStoreTimeout(ctx, a.timeout)
	defer cancel()

	record, err := a.Repository.GetByID(ctx, id.String())
	if err != nil {
		return nil, repoError(err, "users.get_by_id")
	}
	return record, nil
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	ctx, cancel := withStoreTimeout(ctx, a.timeout)
	defer cancel()

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, storeError(err, "users.get_by_id")
	}
	return record, nil
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	ctx, cancel := withStoreTimeout(ctx, a.timeout)
	defer cancel()

	record, err := a.Repository.GetByIdentifierTx(ctx, tx, NormalizeEmail(email))
	if err != nil {
		return nil, repoError(err, "users.get_by_email")
	}
	return record, nil
}

func (a *users) Create(ctx context.Context, user *User) (*User, error) {
	return a.CreateTx(ctx, a.db, user)
}

// CreateTx relies on the unique email index to reject duplicates, a prior
// lookup would race with concurrent registrations.
func (a *users) CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	ctx, cancel := withStoreTimeout(ctx, a.timeout)
	defer cancel()

	prepareUserDefaults(user, a.now())

	record, err := a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		err = repoError(err, "users.create")
		if IsDuplicateRecord(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	return record, nil
}

func (a *users) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	return a.MarkEmailVerifiedTx(ctx, a.db, id)
}

func (a *users) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	return a.update(ctx, tx, id, "users.mark_email_verified", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("is_email_verified = ?", true)
	})
}

func (a *users) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.UpdatePasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	return a.update(ctx, tx, id, "users.update_password", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("password_hash = ?", passwordHash)
	})
}

func (a *users) SetPendingTwoFactorSecret(ctx context.Context, id uuid.UUID, sealedSecret string) error {
	return a.SetPendingTwoFactorSecretTx(ctx, a.db, id, sealedSecret)
}

// SetPendingTwoFactorSecretTx stages a new secret. The active secret and
// the enabled flag are left alone until ActivateTwoFactorTx.
func (a *users) SetPendingTwoFactorSecretTx(ctx context.Context, tx bun.IDB, id uuid.UUID, sealedSecret string) error {
	return a.update(ctx, tx, id, "users.set_pending_two_factor_secret", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("two_factor_pending_secret = ?", sealedSecret)
	})
}

func (a *users) ActivateTwoFactor(ctx context.Context, id uuid.UUID, sealedSecret string) error {
	return a.ActivateTwoFactorTx(ctx, a.db, id, sealedSecret)
}

// ActivateTwoFactorTx promotes the pending secret, but only if it is still
// sealedSecret. A concurrent re-enrollment makes this a not found.
func (a *users) ActivateTwoFactorTx(ctx context.Context, tx bun.IDB, id uuid.UUID, sealedSecret string) error {
	return a.update(ctx, tx, id, "users.activate_two_factor", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("two_factor_secret = ?", sealedSecret).
			Set("two_factor_pending_secret = NULL").
			Set("two_factor_enabled = ?", true).
			Where("two_factor_pending_secret = ?", sealedSecret)
	})
}

func (a *users) update(ctx context.Context, tx bun.IDB, id uuid.UUID, op string, apply func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	ctx, cancel := withStoreTimeout(ctx, a.timeout)
	defer cancel()

	q := tx.NewUpdate().
		Model((*User)(nil)).
		Set("updated_at = ?", a.now().UTC()).
		Where("id = ?", id)

	res, err := apply(q).Exec(ctx)
	if err != nil {
		return storeError(err, op)
	}

	return affectedOrNotFound(res, op, map[string]any{"id": id.String()})
}

func prepareUserDefaults(user *User, now time.Time) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = NormalizeEmail(user.Email)

	now = now.UTC()
	if user.CreatedAt == nil {
		user.CreatedAt = &now
	}
	if user.UpdatedAt == nil {
		user.UpdatedAt = &now
	}
}
