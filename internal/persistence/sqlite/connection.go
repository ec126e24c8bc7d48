// Package sqlite implements persistence.Store over a SQLite database via
// database/sql and the modernc.org/sqlite driver. Foreign keys are enforced
// at the engine level; the cascade/restrict matrix lives in the schema.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/example/autoplanner/internal/persistence"
)

// Store is the SQLite-backed store. A Store either owns the *sql.DB or is a
// transaction-scoped view sharing one *sql.Tx; nested Transaction calls on
// a view flatten into the outer transaction.
type Store struct {
	db *sql.DB
	tx *sql.Tx
}

// queryer is the subset of database/sql shared by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) q() queryer {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Open initialises a SQLite store from a DSN or plain file path. Foreign
// key enforcement and immediate-mode write transactions are configured on
// every connection; a single connection serializes writers.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", normalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite allows one writer; a single pooled connection keeps
	// transactions from contending with their own pool.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	return &Store{db: db}, nil
}

// normalizeDSN appends the pragmas the store depends on unless the caller
// already chose their own.
func normalizeDSN(dsn string) string {
	if dsn == "" {
		dsn = "file:autoplanner.db"
	}
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "_pragma") || strings.Contains(dsn, "_txlock") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_txlock=immediate"
}

// Close releases the database handle. Closing a transaction view is an
// error.
func (s *Store) Close() error {
	if s.tx != nil {
		return fmt.Errorf("sqlite: cannot close a transaction view")
	}
	return s.db.Close()
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Transaction runs fn atomically with an immediate write lock. Calls on an
// already transactional view flatten into it and share its fate.
func (s *Store) Transaction(ctx context.Context, fn func(tx persistence.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Store{db: s.db, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("sqlite: transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit transaction: %w", err)
	}
	return nil
}

var _ persistence.Store = (*Store)(nil)
