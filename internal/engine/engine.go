// Package engine owns the connection to the embedded SQLite engine.
//
// Engine is a thin adapter over database/sql with the modernc.org/sqlite
// driver: it opens the store file, applies the pragmas the store depends
// on, and scopes transactions so they are released on every exit path.
// Everything above it (schema, blob store, queries) talks to SQLite only
// through this package.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DefaultBusyTimeout is how long a statement waits on the write lock
// before the engine reports SQLITE_BUSY.
const DefaultBusyTimeout = 5 * time.Second

// Engine wraps the shared database handle.
type Engine struct {
	db   *sql.DB
	path string
	dsn  string
}

// Open opens (or creates) the SQLite database at path.
// Use ":memory:" for an in-memory database; in-memory stores are pinned
// to a single connection because each pooled connection would otherwise
// see a distinct database. The pin means an open cursor holds the only
// connection: close it before writing, or pass a context with a
// deadline so the blocked write gives up.
func Open(path string, busyTimeout time.Duration) (*Engine, error) {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}

	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, busyTimeout.Milliseconds())
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode so readers keep a consistent snapshot while a
	// writer proceeds. The mode is persistent, so it reaches every
	// pooled connection.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	return &Engine{db: db, path: path, dsn: dsn}, nil
}

// Path returns the path the engine was opened with.
func (e *Engine) Path() string { return e.path }

// WithTx runs fn inside a single write transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (e *Engine) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// WithLockedTx runs fn inside a write transaction that takes the
// engine's write lock up front (BEGIN IMMEDIATE) on a dedicated
// connection. WithTx begins deferred, so a transaction that reads
// before writing holds a read snapshot its lock upgrade cannot wait
// out: under contention the upgrade fails with SQLITE_BUSY instead of
// queueing on busy_timeout. Schema work reads sqlite_master before
// creating anything, so it must come through here; concurrent first
// initializations then line up on the write lock.
func (e *Engine) WithLockedTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if e.path == ":memory:" {
		// The in-memory pool is pinned to one connection, so write
		// transactions already serialize on it.
		return e.WithTx(ctx, fn)
	}

	db, err := sql.Open("sqlite", e.dsn+"&_txlock=immediate")
	if err != nil {
		return fmt.Errorf("open immediate connection: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin immediate tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit immediate tx: %w", err)
	}
	return nil
}

// WithReadTx runs fn inside a read-only transaction and rolls it back
// when fn returns. fn observes a consistent snapshot.
func (e *Engine) WithReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.BeginRead(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(tx)
}

// BeginRead starts a read-only transaction the caller must release,
// typically by closing the cursor built on top of it.
func (e *Engine) BeginRead(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	return tx, nil
}

// Close shuts down the database handle.
func (e *Engine) Close() error {
	return e.db.Close()
}

// IsConstraintViolation reports whether err is a primary-key or unique
// constraint violation from the engine. Extended result codes keep the
// base SQLITE_CONSTRAINT code in the low byte.
func IsConstraintViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
