package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultStoreTimeout bounds every store call
const DefaultStoreTimeout = 5 * time.Second

const pgUniqueViolation = "23505"

var (
	// ErrRecordNotFound no row matched
	ErrRecordNotFound = goerrors.New("record not found", CategoryNotFound).
				WithTextCode("record_not_found").
				WithCode(goerrors.CodeNotFound)
	// ErrDuplicateRecord a unique constraint rejected the write
	ErrDuplicateRecord = goerrors.New("record already exists", CategoryConflict).
				WithTextCode("duplicate_record").
				WithCode(goerrors.CodeConflict)
)

// IsRecordNotFound reports whether err is a missing row
func IsRecordNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsDuplicateRecord reports whether err is a unique constraint violation
func IsDuplicateRecord(err error) bool {
	return errors.Is(err, ErrDuplicateRecord)
}

// storeError maps driver errors onto the closed set of store errors.
// Errors already built by this package pass through.
func storeError(err error, op string) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}

	return mapStoreError(err, op)
}

// repoError maps failures coming back from go-repository-bun, which are
// themselves go-errors values, onto the same closed set.
func repoError(err error, op string) error {
	if err == nil {
		return nil
	}
	if repository.IsRecordNotFound(err) {
		return wrapSentinel(ErrRecordNotFound, err, map[string]any{"operation": op})
	}
	return mapStoreError(err, op)
}

func mapStoreError(err error, op string) error {
	md := map[string]any{"operation": op}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return wrapSentinel(ErrRecordNotFound, err, md)
	case isUniqueViolation(err):
		return wrapSentinel(ErrDuplicateRecord, err, md)
	case errors.Is(err, context.DeadlineExceeded):
		return infrastructureError("store_timeout", "store call timed out", err, md)
	}

	return infrastructureError("store_error", "store call failed", err, md)
}

// infrastructureError builds the error directly instead of through
// goerrors.Wrap, which would keep the category of a go-errors cause.
func infrastructureError(textCode, message string, cause error, md map[string]any) *goerrors.Error {
	out := goerrors.New(message, CategoryInfrastructure).
		WithTextCode(textCode).
		WithCode(goerrors.CodeInternal).
		WithMetadata(md)
	out.Source = cause
	return out
}

// affectedOrNotFound turns a zero row write into ErrRecordNotFound
func affectedOrNotFound(res sql.Result, op string, md map[string]any) error {
	n, err := rowsAffected(res, op)
	if err != nil {
		return err
	}
	if n == 0 {
		meta := map[string]any{"operation": op}
		for k, v := range md {
			meta[k] = v
		}
		return wrapSentinel(ErrRecordNotFound, nil, meta)
	}
	return nil
}

func rowsAffected(res sql.Result, op string) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError(err, op)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	// sqlite drivers only expose the constraint failure in the message
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

func withStoreTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, d)
}
