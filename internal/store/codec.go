package store

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"time"
)

// Payload codec names persisted in store_meta. The codec is fixed when
// the store is created; opening with a different one is a schema error.
const (
	CodecZlib = "zlib"
	CodecRaw  = "raw"
)

// EncodeTime converts a caller-supplied timestamp to the persisted
// representation: epoch nanoseconds. Encoding normalizes the zone away,
// so two values naming the same instant are the same timestamp.
func EncodeTime(t time.Time) (int64, error) {
	if t.IsZero() {
		return 0, ErrTimestampZero
	}
	ns := t.UnixNano()
	// UnixNano is undefined outside ~1678..2262; a round trip that does
	// not land on the same instant means the value overflowed.
	if !time.Unix(0, ns).Equal(t) {
		return 0, fmt.Errorf("%w: %s", ErrTimestampRange, t)
	}
	return ns, nil
}

// DecodeTime converts the persisted representation back to a UTC time.
func DecodeTime(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

// EncodePayload prepares payload bytes for storage under the given
// codec. The input buffer stays owned by the caller.
func EncodePayload(codec string, p []byte) ([]byte, error) {
	switch codec {
	case CodecRaw:
		return bytes.Clone(p), nil
	case CodecZlib:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(p); err != nil {
			zw.Close()
			return nil, fmt.Errorf("compress payload: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compress payload: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown payload codec %q", codec)
	}
}

// DecodePayload reverses EncodePayload. It always returns a non-nil
// slice for stored data, so zero-length payloads survive a round trip.
func DecodePayload(codec string, p []byte) ([]byte, error) {
	switch codec {
	case CodecRaw:
		if p == nil {
			return []byte{}, nil
		}
		return bytes.Clone(p), nil
	case CodecZlib:
		zr, err := zlib.NewReader(bytes.NewReader(p))
		if err != nil {
			return nil, fmt.Errorf("decompress payload: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decompress payload: %w", err)
		}
		if out == nil {
			out = []byte{}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown payload codec %q", codec)
	}
}
