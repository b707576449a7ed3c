// Package store implements the persistent blob table: schema
// management and the exact-pair write/read/delete path.
//
// An Entry is identified by its (key, timestamp) pair; keys alone are
// not unique. Entries are immutable: a new version of a key is a new
// insert under a different timestamp.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/timevault/timevault/internal/engine"
)

// Entry is one stored (key, timestamp, payload) record. Timestamps are
// reported in UTC regardless of the zone they were written with.
type Entry struct {
	Key       string
	Timestamp time.Time
	Payload   []byte
}

// Store is the exact-pair create/read/delete surface over the entries
// table. It is safe for concurrent use; writes serialize on the
// engine's single-writer lock.
type Store struct {
	eng   *engine.Engine
	codec string
}

// New builds a Store over an initialized engine. codec must be the one
// Initialize recorded for this database.
func New(eng *engine.Engine, codec string) *Store {
	return &Store{eng: eng, codec: codec}
}

// Codec returns the payload codec this store reads and writes.
func (s *Store) Codec() string { return s.codec }

// Put inserts a new entry in a single transaction. The key may be
// empty and the payload may be zero-length. It fails with
// ErrDuplicateEntry when the (key, timestamp) pair is already stored;
// duplicates are detected by the primary-key constraint itself, not a
// prior existence check, so concurrent writers cannot race past it.
func (s *Store) Put(ctx context.Context, key string, ts time.Time, payload []byte) error {
	ns, err := EncodeTime(ts)
	if err != nil {
		return err
	}
	blob, err := EncodePayload(s.codec, payload)
	if err != nil {
		return err
	}

	err = s.eng.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO entries (key, ts, payload) VALUES (?, ?, ?)",
			key, ns, blob,
		)
		return err
	})
	if err != nil {
		if engine.IsConstraintViolation(err) {
			return fmt.Errorf("put %q @ %s: %w", key, DecodeTime(ns), ErrDuplicateEntry)
		}
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Get returns the entry stored under the exact (key, timestamp) pair,
// or nil if there is none. Absence is a normal outcome, not an error.
func (s *Store) Get(ctx context.Context, key string, ts time.Time) (*Entry, error) {
	ns, err := EncodeTime(ts)
	if err != nil {
		return nil, err
	}

	var blob []byte
	err = s.eng.WithReadTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			"SELECT payload FROM entries WHERE key = ? AND ts = ?",
			key, ns,
		).Scan(&blob)
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}

	payload, err := DecodePayload(s.codec, blob)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return &Entry{Key: key, Timestamp: DecodeTime(ns), Payload: payload}, nil
}

// Delete removes the entry for the exact (key, timestamp) pair and
// reports whether a row was removed. Deleting an absent pair is a
// no-op, so Delete is idempotent.
func (s *Store) Delete(ctx context.Context, key string, ts time.Time) (bool, error) {
	ns, err := EncodeTime(ts)
	if err != nil {
		return false, err
	}

	var removed bool
	err = s.eng.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM entries WHERE key = ? AND ts = ?",
			key, ns,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	return removed, nil
}

// Count returns the total number of stored entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.eng.WithReadTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Prune deletes every entry with a timestamp strictly older than
// olderThan and returns how many rows were removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	ns, err := EncodeTime(olderThan)
	if err != nil {
		return 0, err
	}

	var removed int64
	err = s.eng.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE ts < ?", ns)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return removed, nil
}
