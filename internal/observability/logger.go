// Package observability provides structured logging and operation
// counters for the store.
//
// Logger wraps log/slog with a persistent store field. Metrics counts
// operations and byte volume; there is no export surface, callers read
// a snapshot.
package observability

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog with persistent store context.
type Logger struct {
	inner *slog.Logger
	store string
}

// NewLogger creates a structured JSON logger tagged with the store
// path. Output defaults to os.Stderr if w is nil.
func NewLogger(storePath string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return &Logger{
		inner: slog.New(handler),
		store: storePath,
	}
}

// NewLoggerWithHandler creates a logger with a custom slog handler.
func NewLoggerWithHandler(storePath string, h slog.Handler) *Logger {
	return &Logger{
		inner: slog.New(h),
		store: storePath,
	}
}

// NewNopLogger creates a logger that discards everything. It is the
// default for stores opened without an explicit logger.
func NewNopLogger() *Logger {
	return NewLogger("", io.Discard)
}

// With returns a new Logger with an additional persistent field.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{
		inner: l.inner.With(slog.Any(key, value)),
		store: l.store,
	}
}

// attrs prepends the store path to the arguments.
func (l *Logger) attrs(args []any) []any {
	return append([]any{slog.String("store", l.store)}, args...)
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) {
	l.inner.Debug(msg, l.attrs(args)...)
}

// Info logs at INFO level.
func (l *Logger) Info(msg string, args ...any) {
	l.inner.Info(msg, l.attrs(args)...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, args ...any) {
	l.inner.Warn(msg, l.attrs(args)...)
}

// Error logs at ERROR level.
func (l *Logger) Error(msg string, args ...any) {
	l.inner.Error(msg, l.attrs(args)...)
}

// StorePath returns the store path associated with this logger.
func (l *Logger) StorePath() string {
	return l.store
}
