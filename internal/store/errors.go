package store

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateEntry is returned by Put when the (key, timestamp)
	// pair is already stored. Callers decide how to recover; the store
	// never retries.
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrTimestampZero is returned when an operation gets the zero
	// time.Time instead of a fully specified point in time.
	ErrTimestampZero = errors.New("timestamp is the zero time")

	// ErrTimestampRange is returned when a timestamp cannot be encoded
	// as epoch nanoseconds (roughly years 1678 through 2262).
	ErrTimestampRange = errors.New("timestamp outside representable range")
)

// SchemaError means the persistent schema could not be created or an
// existing one is incompatible. It is fatal: the store must not be used
// after Initialize fails with it.
type SchemaError struct {
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schema: %s: %v", e.Reason, e.Err)
	}
	return "schema: " + e.Reason
}

func (e *SchemaError) Unwrap() error { return e.Err }
