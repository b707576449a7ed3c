// Package query implements the multi-entry read patterns: all versions
// of a key, the latest version, bounded timestamp ranges, and the full
// key/timestamp listing.
//
// Every operation runs in its own read-only transaction. Cursors hold
// that transaction for their whole lifetime, so even a large result
// consumed slowly observes one consistent snapshot; writes committed
// after the cursor was opened are invisible to it.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/timevault/timevault/internal/engine"
	"github.com/timevault/timevault/internal/store"
)

// Queries runs read-only lookups against an initialized store.
type Queries struct {
	eng   *engine.Engine
	codec string
}

// New builds a Queries over the same engine and codec as the store.
func New(eng *engine.Engine, codec string) *Queries {
	return &Queries{eng: eng, codec: codec}
}

// ListByKey returns a cursor over every entry stored under key,
// ascending by timestamp. The caller must Close the cursor. Calling
// ListByKey again restarts the listing on a fresh snapshot.
func (q *Queries) ListByKey(ctx context.Context, key string) (*Cursor, error) {
	return q.openCursor(ctx, key,
		"SELECT ts, payload FROM entries WHERE key = ? ORDER BY ts ASC", key)
}

// Range returns a cursor over the entries for key whose timestamp lies
// between from and to, ascending. Each bound is inclusive or exclusive
// independently, so incremental "since last seen" readers can exclude
// the previous upper bound exactly.
func (q *Queries) Range(ctx context.Context, key string, from, to time.Time, incFrom, incTo bool) (*Cursor, error) {
	fromNS, err := store.EncodeTime(from)
	if err != nil {
		return nil, err
	}
	toNS, err := store.EncodeTime(to)
	if err != nil {
		return nil, err
	}

	lo := ">"
	if incFrom {
		lo = ">="
	}
	hi := "<"
	if incTo {
		hi = "<="
	}
	stmt := fmt.Sprintf(
		"SELECT ts, payload FROM entries WHERE key = ? AND ts %s ? AND ts %s ? ORDER BY ts ASC",
		lo, hi)
	return q.openCursor(ctx, key, stmt, key, fromNS, toNS)
}

// Latest returns the entry with the maximum timestamp for key, or nil
// if the key has no entries. (key, timestamp) is unique, so there is
// never a tie to break.
func (q *Queries) Latest(ctx context.Context, key string) (*store.Entry, error) {
	var ns int64
	var blob []byte
	err := q.eng.WithReadTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			"SELECT ts, payload FROM entries WHERE key = ? ORDER BY ts DESC LIMIT 1",
			key,
		).Scan(&ns, &blob)
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest %q: %w", key, err)
	}

	payload, err := store.DecodePayload(q.codec, blob)
	if err != nil {
		return nil, fmt.Errorf("latest %q: %w", key, err)
	}
	return &store.Entry{Key: key, Timestamp: store.DecodeTime(ns), Payload: payload}, nil
}

// ListAll returns a cursor over every (key, timestamp) pair in the
// store, ordered by key then timestamp. Payloads are not loaded.
func (q *Queries) ListAll(ctx context.Context) (*KeyCursor, error) {
	tx, err := q.eng.BeginRead(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, "SELECT key, ts FROM entries ORDER BY key ASC, ts ASC")
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("list all: %w", err)
	}
	return &KeyCursor{tx: tx, rows: rows}, nil
}

func (q *Queries) openCursor(ctx context.Context, key, stmt string, args ...any) (*Cursor, error) {
	tx, err := q.eng.BeginRead(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("list %q: %w", key, err)
	}
	return &Cursor{tx: tx, rows: rows, key: key, codec: q.codec}, nil
}

// Cursor is a lazy, finite sequence of entries under one key, backed by
// a single query inside a read-only transaction. Usage follows
// database/sql rows: Next, Entry, then Err and Close.
//
// On an in-memory store the cursor occupies the store's only
// connection until closed, so writes issued while it is open wait for
// it; give those writes a context deadline.
type Cursor struct {
	tx    *sql.Tx
	rows  *sql.Rows
	key   string
	codec string

	cur *store.Entry
	err error
}

// Next advances to the next entry. It returns false when the sequence
// is exhausted or an error occurred; check Err after the loop.
func (c *Cursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var ns int64
	var blob []byte
	if err := c.rows.Scan(&ns, &blob); err != nil {
		c.err = fmt.Errorf("scan %q: %w", c.key, err)
		return false
	}
	payload, err := store.DecodePayload(c.codec, blob)
	if err != nil {
		c.err = fmt.Errorf("decode %q: %w", c.key, err)
		return false
	}
	c.cur = &store.Entry{Key: c.key, Timestamp: store.DecodeTime(ns), Payload: payload}
	return true
}

// Entry returns the entry Next advanced to.
func (c *Cursor) Entry() *store.Entry { return c.cur }

// Err returns the first error hit while iterating, if any.
func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

// Close releases the cursor and its snapshot transaction. It is safe
// to call more than once.
func (c *Cursor) Close() error {
	err := c.rows.Close()
	c.tx.Rollback()
	return err
}

// Collect drains the cursor into a slice and closes it.
func (c *Cursor) Collect() ([]*store.Entry, error) {
	defer c.Close()
	var out []*store.Entry
	for c.Next() {
		out = append(out, c.Entry())
	}
	return out, c.Err()
}

// KeyCursor iterates (key, timestamp) pairs without payloads.
type KeyCursor struct {
	tx   *sql.Tx
	rows *sql.Rows

	key string
	ts  time.Time
	err error
}

// Next advances to the next pair.
func (c *KeyCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var ns int64
	if err := c.rows.Scan(&c.key, &ns); err != nil {
		c.err = fmt.Errorf("scan listing: %w", err)
		return false
	}
	c.ts = store.DecodeTime(ns)
	return true
}

// Pair returns the pair Next advanced to.
func (c *KeyCursor) Pair() (string, time.Time) { return c.key, c.ts }

// Err returns the first error hit while iterating, if any.
func (c *KeyCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

// Close releases the cursor and its snapshot transaction.
func (c *KeyCursor) Close() error {
	err := c.rows.Close()
	c.tx.Rollback()
	return err
}
