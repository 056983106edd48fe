package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	BackupCodes() BackupCodes
	VerificationTokens() VerificationTokens
	Settings() SettingsRepository
	APIKeys() APIKeys
}

// RepositoryOption configures the repository manager
type RepositoryOption func(*mngr)

// WithStoreTimeout bounds every repository call
func WithStoreTimeout(d time.Duration) RepositoryOption {
	return func(m *mngr) {
		if d > 0 {
			m.timeout = d
		}
	}
}

type mngr struct {
	db                 *bun.DB
	timeout            time.Duration
	users              Users
	backupCodes        BackupCodes
	verificationTokens VerificationTokens
	settings           SettingsRepository
	apiKeys            APIKeys
}

func NewRepositoryManager(db *bun.DB, opts ...RepositoryOption) RepositoryManager {
	m := &mngr{
		db:      db,
		timeout: DefaultStoreTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	m.users = NewUsersRepository(db, m.timeout)
	m.backupCodes = NewBackupCodesRepository(db, m.timeout)
	m.verificationTokens = NewVerificationTokensRepository(db, m.timeout)
	m.settings = NewSettingsRepository(db, m.timeout)
	m.apiKeys = NewAPIKeysRepository(db, m.timeout)

	return m
}

func (m *mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository database should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.backupCodes == nil {
		return errors.New("repository backupCodes should be initialized")
	}

	if m.verificationTokens == nil {
		return errors.New("repository verificationTokens should be initialized")
	}

	if m.settings == nil {
		return errors.New("repository settings should be initialized")
	}

	if m.apiKeys == nil {
		return errors.New("repository apiKeys should be initialized")
	}

	return nil
}

func (m *mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m *mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return storeError(ctx.Err(), "tx.begin")
	default:
		return storeError(m.db.RunInTx(ctx, opts, f), "tx")
	}
}

func (m *mngr) Users() Users {
	return m.users
}

func (m *mngr) BackupCodes() BackupCodes {
	return m.backupCodes
}

func (m *mngr) VerificationTokens() VerificationTokens {
	return m.verificationTokens
}

func (m *mngr) Settings() SettingsRepository {
	return m.settings
}

func (m *mngr) APIKeys() APIKeys {
	return m.apiKeys
}
