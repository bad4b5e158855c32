package database

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// ErrNilDB is returned by every DB method invoked on an unconnected handle.
var ErrNilDB = errors.New("nil db")

// DB is the storage handle shared by repositories and the quota store.
type DB interface {
	Ping(ctx context.Context) error
	Close() error

	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row

	Begin(ctx context.Context) (Tx, error)

	// SQLDB exposes the pool as *sql.DB for the migration runner.
	SQLDB() *sql.DB
}

type Tx interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Rows interface {
	Close()
	Next() bool
	Scan(dest ...any) error
	Err() error
}

type Row interface {
	Scan(dest ...any) error
}

// ErrNoRows is the sentinel a Row.Scan reports when nothing matched.
var ErrNoRows = errors.New("no rows in result set")

// IsNoRows matches both ErrNoRows and the driver-specific no-rows errors.
func IsNoRows(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return true
	}
	return err.Error() == ErrNoRows.Error()
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func WithTx(ctx context.Context, db DB, fn func(tx Tx) error) error {
	if db == nil {
		return ErrNilDB
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}
