// Package storage opens the bun database for a dialect and applies the
// embedded goose migrations.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/promptlift/go-auth"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// InMemoryDSN is a private in-memory SQLite database. Pair it with a
// single connection, every new connection gets an empty database.
const InMemoryDSN = "file::memory:"

// Open connects to dsn and wraps it in a bun.DB for the dialect
func Open(dialect, dsn string) (*bun.DB, error) {
	switch dialect {
	case DialectSQLite:
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, fmt.Errorf("storage: open sqlite: %w", err)
		}
		// sqlite allows a single writer
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DialectPostgres:
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("storage: open postgres: %w", err)
		}
		sqldb.SetMaxOpenConns(25)
		sqldb.SetMaxIdleConns(5)
		sqldb.SetConnMaxLifetime(30 * time.Minute)
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, fmt.Errorf("storage: unsupported dialect %q", dialect)
	}
}

// Migrate applies every pending migration for the dialect
func Migrate(ctx context.Context, db *bun.DB, dialect string) ([]*goose.MigrationResult, error) {
	fsys, err := auth.MigrationsFor(dialect)
	if err != nil {
		return nil, fmt.Errorf("storage: migrations for %s: %w", dialect, err)
	}

	gooseDialect := goose.DialectSQLite3
	if dialect == DialectPostgres {
		gooseDialect = goose.DialectPostgres
	}

	provider, err := goose.NewProvider(gooseDialect, db.DB, fsys)
	if err != nil {
		return nil, fmt.Errorf("storage: goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return results, fmt.Errorf("storage: migrate: %w", err)
	}
	return results, nil
}

// OpenAndMigrate is Open followed by Migrate, closing the database on failure
func OpenAndMigrate(ctx context.Context, dialect, dsn string) (*bun.DB, error) {
	db, err := Open(dialect, dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	if _, err := Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
