// Package timevault is a versioned blob store on top of embedded
// SQLite.
//
//   - Payloads are stored under a textual key plus a caller-supplied
//     timestamp. Keys do not need to be unique; the (key, timestamp)
//     pair does, and it is the primary key of the underlying table.
//   - Timestamps are never generated here. Callers decide how versions
//     are stamped; the store only enforces that a pair is not reused.
//   - Entries are immutable. A new version of a key is a new insert
//     under a different timestamp, never an overwrite.
//
// All operations are synchronous and safe for concurrent use. Isolation
// and durability come from SQLite transactions: one writer at a time,
// snapshot reads alongside it.
package timevault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/timevault/timevault/internal/engine"
	"github.com/timevault/timevault/internal/observability"
	"github.com/timevault/timevault/internal/query"
	"github.com/timevault/timevault/internal/store"
)

// Entry is one stored (key, timestamp, payload) record.
type Entry = store.Entry

// Cursor is a lazy sequence of entries under one key. See the query
// package for iteration semantics.
type Cursor = query.Cursor

// KeyCursor is a lazy sequence of (key, timestamp) pairs.
type KeyCursor = query.KeyCursor

// SchemaError is returned by Open when the persistent schema is
// missing, unreadable, or incompatible with this build.
type SchemaError = store.SchemaError

// Logger is the structured logger the store reports through.
type Logger = observability.Logger

// Metrics is the operation-counter collector. See the Counter
// constants in the observability package for what is tracked.
type Metrics = observability.Metrics

// NewLogger creates a structured JSON logger tagged with the store
// path, for use with WithLogger. Output defaults to os.Stderr if w is
// nil.
func NewLogger(storePath string, w io.Writer) *Logger {
	return observability.NewLogger(storePath, w)
}

// NewMetrics creates an empty counter collector, for use with
// WithMetrics.
func NewMetrics() *Metrics {
	return observability.NewMetrics()
}

var (
	// ErrDuplicateEntry reports a Put whose (key, timestamp) pair is
	// already stored.
	ErrDuplicateEntry = store.ErrDuplicateEntry

	// ErrTimestampZero reports a zero time.Time where a fully
	// specified timestamp is required.
	ErrTimestampZero = store.ErrTimestampZero

	// ErrTimestampRange reports a timestamp outside the representable
	// range (roughly years 1678 through 2262).
	ErrTimestampRange = store.ErrTimestampRange

	// ErrStoreClosed reports an operation on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

type config struct {
	logger      *observability.Logger
	metrics     *observability.Metrics
	codec       string
	retention   time.Duration
	busyTimeout time.Duration
}

// Option configures Open.
type Option func(*config)

// WithLogger routes store logs to l instead of discarding them.
func WithLogger(l *observability.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics uses m instead of a fresh collector, so several stores
// can share one.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithoutCompression stores payload bytes raw instead of
// zlib-compressed. The choice is recorded when the store is created
// and must match on every later Open.
func WithoutCompression() Option {
	return func(c *config) { c.codec = store.CodecRaw }
}

// WithRetention prunes entries older than d during Close. Zero (the
// default) keeps everything.
func WithRetention(d time.Duration) Option {
	return func(c *config) { c.retention = d }
}

// WithBusyTimeout overrides how long statements wait on the engine's
// write lock.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) { c.busyTimeout = d }
}

// Store is a handle to one vault file. It owns the connection and the
// schema; every method maps to a single transaction on the engine.
type Store struct {
	eng       *engine.Engine
	blobs     *store.Store
	queries   *query.Queries
	meta      *store.Meta
	log       *observability.Logger
	metrics   *observability.Metrics
	retention time.Duration
	closed    atomic.Bool
}

// Open opens (or creates) the vault at path and ensures its schema.
// Use ":memory:" for a throwaway in-memory store. In-memory stores run
// on a single connection, so an open Cursor holds the connection a
// write would need: close cursors before writing, or give the write a
// context deadline so it fails instead of waiting indefinitely.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := config{codec: store.CodecZlib}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = observability.NewNopLogger()
	}
	if cfg.metrics == nil {
		cfg.metrics = observability.NewMetrics()
	}

	eng, err := engine.Open(path, cfg.busyTimeout)
	if err != nil {
		return nil, err
	}

	meta, err := store.Initialize(context.Background(), eng, cfg.codec)
	if err != nil {
		eng.Close()
		return nil, err
	}

	s := &Store{
		eng:       eng,
		blobs:     store.New(eng, meta.Codec),
		queries:   query.New(eng, meta.Codec),
		meta:      meta,
		log:       cfg.logger,
		metrics:   cfg.metrics,
		retention: cfg.retention,
	}
	s.log.Info("store opened",
		"id", meta.ID,
		"codec", meta.Codec,
		"schema_version", meta.SchemaVersion,
	)
	return s, nil
}

// ID returns the store's identity, a UUID minted when the vault file
// was first created. It is stable across reopens.
func (s *Store) ID() string { return s.meta.ID }

// Metrics returns the store's counter collector.
func (s *Store) Metrics() *observability.Metrics { return s.metrics }

// Put stores payload under the (key, timestamp) pair. The key may be
// empty and the payload may be zero-length; the timestamp must be a
// fully specified instant. Fails with ErrDuplicateEntry if the pair is
// already stored, leaving the existing payload untouched.
func (s *Store) Put(ctx context.Context, key string, ts time.Time, payload []byte) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	err := s.blobs.Put(ctx, key, ts, payload)
	switch {
	case errors.Is(err, ErrDuplicateEntry):
		s.metrics.Increment(observability.CounterDuplicates)
		s.log.Debug("duplicate rejected", "key", key, "ts", ts)
	case err != nil:
		s.metrics.Increment(observability.CounterErrors)
	default:
		s.metrics.Increment(observability.CounterPuts)
		s.metrics.Add(observability.CounterBytesIn, int64(len(payload)))
		s.log.Debug("put", "key", key, "ts", ts, "bytes", len(payload))
	}
	return err
}

// Get returns the entry stored under the exact (key, timestamp) pair,
// or nil if there is none.
func (s *Store) Get(ctx context.Context, key string, ts time.Time) (*Entry, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	e, err := s.blobs.Get(ctx, key, ts)
	switch {
	case err != nil:
		s.metrics.Increment(observability.CounterErrors)
	case e == nil:
		s.metrics.Increment(observability.CounterMisses)
	default:
		s.metrics.Increment(observability.CounterHits)
		s.metrics.Add(observability.CounterBytesOut, int64(len(e.Payload)))
	}
	s.metrics.Increment(observability.CounterGets)
	return e, err
}

// Delete removes the entry for the exact (key, timestamp) pair and
// reports whether a row was removed. Deleting an absent pair is a
// reported no-op.
func (s *Store) Delete(ctx context.Context, key string, ts time.Time) (bool, error) {
	if s.closed.Load() {
		return false, ErrStoreClosed
	}
	removed, err := s.blobs.Delete(ctx, key, ts)
	if err != nil {
		s.metrics.Increment(observability.CounterErrors)
		return false, err
	}
	s.metrics.Increment(observability.CounterDeletes)
	s.log.Debug("delete", "key", key, "ts", ts, "removed", removed)
	return removed, nil
}

// ListByKey returns a cursor over every entry under key, ascending by
// timestamp. The cursor observes a snapshot taken when it was opened;
// the caller must Close it.
func (s *Store) ListByKey(ctx context.Context, key string) (*Cursor, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	s.metrics.Increment(observability.CounterScans)
	return s.queries.ListByKey(ctx, key)
}

// Latest returns the entry with the maximum timestamp under key, or
// nil if the key has no entries.
func (s *Store) Latest(ctx context.Context, key string) (*Entry, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	s.metrics.Increment(observability.CounterScans)
	return s.queries.Latest(ctx, key)
}

// Range returns a cursor over the entries under key whose timestamp is
// between from and to, ascending. Each bound is inclusive or exclusive
// independently.
func (s *Store) Range(ctx context.Context, key string, from, to time.Time, incFrom, incTo bool) (*Cursor, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	s.metrics.Increment(observability.CounterScans)
	return s.queries.Range(ctx, key, from, to, incFrom, incTo)
}

// ListAll returns a cursor over every (key, timestamp) pair in the
// store, ordered by key then timestamp.
func (s *Store) ListAll(ctx context.Context) (*KeyCursor, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	s.metrics.Increment(observability.CounterScans)
	return s.queries.ListAll(ctx)
}

// Count returns the total number of stored entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}
	return s.blobs.Count(ctx)
}

// Prune deletes every entry with a timestamp strictly older than
// olderThan and returns how many were removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}
	removed, err := s.blobs.Prune(ctx, olderThan)
	if err != nil {
		s.metrics.Increment(observability.CounterErrors)
		return 0, err
	}
	s.metrics.Add(observability.CounterPruned, removed)
	s.log.Info("pruned", "older_than", olderThan, "removed", removed)
	return removed, nil
}

// Close applies the retention policy, if one was configured, and shuts
// the store down. Further operations fail with ErrStoreClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var pruneErr error
	if s.retention > 0 {
		cutoff := time.Now().Add(-s.retention)
		removed, err := s.blobs.Prune(context.Background(), cutoff)
		if err != nil {
			pruneErr = fmt.Errorf("retention prune: %w", err)
			s.log.Warn("retention prune failed", "error", err)
		} else {
			s.metrics.Add(observability.CounterPruned, removed)
			s.log.Info("retention prune", "older_than", cutoff, "removed", removed)
		}
	}
	if err := s.eng.Close(); err != nil {
		return err
	}
	return pruneErr
}
