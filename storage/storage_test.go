package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptlift/go-auth/storage"
)

func TestOpenAndMigrate_SQLite(t *testing.T) {
	ctx := context.Background()

	db, err := storage.OpenAndMigrate(ctx, storage.DialectSQLite, storage.InMemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, table := range []string{"users", "user_backup_codes", "verification_tokens", "user_settings", "api_keys"} {
		var n int
		err := db.NewRaw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(ctx, &n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}

	for table, column := range map[string]string{
		"users":             "two_factor_pending_secret",
		"user_backup_codes": "pending",
	} {
		var n int
		err := db.NewRaw("SELECT count(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(ctx, &n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table+"."+column)
	}

	results, err := storage.Migrate(ctx, db, storage.DialectSQLite)
	require.NoError(t, err)
	assert.Empty(t, results, "second run applies nothing")
}

func TestOpen_UnknownDialect(t *testing.T) {
	_, err := storage.Open("mysql", "")
	assert.Error(t, err)
}
