package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/timevault/timevault/internal/engine"
)

// TableEntries is the blob table. The composite primary key over
// (key, ts) is the uniqueness constraint for the whole store.
const TableEntries = "entries"

// SchemaVersion is bumped whenever the persisted layout changes in a
// way old code cannot read. The timestamp encoding (epoch nanoseconds)
// is part of the versioned layout.
const SchemaVersion = 1

const createEntries = `
CREATE TABLE IF NOT EXISTS entries (
	key     TEXT    NOT NULL,
	ts      INTEGER NOT NULL,
	payload BLOB    NOT NULL,
	PRIMARY KEY (key, ts)
)`

const createMeta = `
CREATE TABLE IF NOT EXISTS store_meta (
	id             TEXT    NOT NULL,
	schema_version INTEGER NOT NULL,
	payload_codec  TEXT    NOT NULL,
	created_at     TEXT    NOT NULL
)`

// Meta identifies a store: a UUID minted at creation, the schema
// version, and the payload codec fixed for the store's lifetime.
type Meta struct {
	ID            string
	SchemaVersion int
	Codec         string
	CreatedAt     time.Time
}

// entryColumn is one expected row of PRAGMA table_info(entries).
type entryColumn struct {
	typ string
	pk  int // position in the primary key, 0 if not part of it
}

var wantColumns = map[string]entryColumn{
	"key":     {typ: "TEXT", pk: 1},
	"ts":      {typ: "INTEGER", pk: 2},
	"payload": {typ: "BLOB", pk: 0},
}

// Initialize creates the blob and meta tables if absent and verifies
// them if present. It must run before any other store operation. The
// whole step is one immediate write transaction, so concurrent first
// initializations queue on the engine's write lock and cannot produce
// divergent schemas.
//
// codec is recorded at creation; reopening with a different codec
// fails, since the codec governs how every stored payload is read.
func Initialize(ctx context.Context, eng *engine.Engine, codec string) (*Meta, error) {
	if codec != CodecZlib && codec != CodecRaw {
		return nil, &SchemaError{Reason: fmt.Sprintf("unknown payload codec %q", codec)}
	}

	var meta *Meta
	err := eng.WithLockedTx(ctx, func(tx *sql.Tx) error {
		existed, err := tableExists(tx, TableEntries)
		if err != nil {
			return &SchemaError{Reason: "inspect existing tables", Err: err}
		}

		if _, err := tx.Exec(createEntries); err != nil {
			return &SchemaError{Reason: "create entries table", Err: err}
		}
		if _, err := tx.Exec(createMeta); err != nil {
			return &SchemaError{Reason: "create meta table", Err: err}
		}

		if err := verifyEntriesShape(tx); err != nil {
			return err
		}

		m, err := readMeta(tx)
		if err != nil {
			return err
		}
		if m == nil {
			if existed {
				// A table from some other tool, with a compatible
				// shape but no identity row. Refuse to adopt it.
				return &SchemaError{Reason: "entries table exists without store metadata"}
			}
			m = &Meta{
				ID:            uuid.NewString(),
				SchemaVersion: SchemaVersion,
				Codec:         codec,
				CreatedAt:     time.Now().UTC(),
			}
			_, err = tx.Exec(
				"INSERT INTO store_meta (id, schema_version, payload_codec, created_at) VALUES (?, ?, ?, ?)",
				m.ID, m.SchemaVersion, m.Codec, m.CreatedAt.Format(time.RFC3339),
			)
			if err != nil {
				return &SchemaError{Reason: "write store metadata", Err: err}
			}
		}

		if m.SchemaVersion != SchemaVersion {
			return &SchemaError{Reason: fmt.Sprintf("schema version %d, this build reads %d", m.SchemaVersion, SchemaVersion)}
		}
		if m.Codec != codec {
			return &SchemaError{Reason: fmt.Sprintf("store uses payload codec %q, opened with %q", m.Codec, codec)}
		}

		meta = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func tableExists(tx *sql.Tx, name string) (bool, error) {
	var n int
	err := tx.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&n)
	return n > 0, err
}

func verifyEntriesShape(tx *sql.Tx) error {
	rows, err := tx.Query("PRAGMA table_info(entries)")
	if err != nil {
		return &SchemaError{Reason: "read table shape", Err: err}
	}
	defer rows.Close()

	seen := make(map[string]entryColumn)
	for rows.Next() {
		var cid, notnull, pk int
		var name, typ string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return &SchemaError{Reason: "read table shape", Err: err}
		}
		seen[name] = entryColumn{typ: typ, pk: pk}
	}
	if err := rows.Err(); err != nil {
		return &SchemaError{Reason: "read table shape", Err: err}
	}

	if len(seen) != len(wantColumns) {
		return &SchemaError{Reason: fmt.Sprintf("entries table has %d columns, want %d", len(seen), len(wantColumns))}
	}
	for name, want := range wantColumns {
		got, ok := seen[name]
		if !ok {
			return &SchemaError{Reason: fmt.Sprintf("entries table is missing column %q", name)}
		}
		if got != want {
			return &SchemaError{Reason: fmt.Sprintf("entries column %q is %s (pk %d), want %s (pk %d)",
				name, got.typ, got.pk, want.typ, want.pk)}
		}
	}
	return nil
}

func readMeta(tx *sql.Tx) (*Meta, error) {
	var m Meta
	var created string
	err := tx.QueryRow(
		"SELECT id, schema_version, payload_codec, created_at FROM store_meta LIMIT 1",
	).Scan(&m.ID, &m.SchemaVersion, &m.Codec, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &SchemaError{Reason: "read store metadata", Err: err}
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &m, nil
}
