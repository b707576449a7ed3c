package store

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestEncodeTime_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)

	ns, err := EncodeTime(ts)
	if err != nil {
		t.Fatal(err)
	}
	got := DecodeTime(ns)
	if !got.Equal(ts) {
		t.Errorf("round trip = %v, want %v", got, ts)
	}
	if got.Location() != time.UTC {
		t.Errorf("decoded location = %v, want UTC", got.Location())
	}
}

func TestEncodeTime_NormalizesZone(t *testing.T) {
	zone := time.FixedZone("UTC+5", 5*3600)
	inZone := time.Date(2026, 3, 14, 14, 0, 0, 0, zone)
	inUTC := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	a, err := EncodeTime(inZone)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeTime(inUTC)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("same instant encoded differently: %d vs %d", a, b)
	}
}

func TestEncodeTime_Zero(t *testing.T) {
	_, err := EncodeTime(time.Time{})
	if !errors.Is(err, ErrTimestampZero) {
		t.Errorf("err = %v, want ErrTimestampZero", err)
	}
}

func TestEncodeTime_OutOfRange(t *testing.T) {
	far := time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := EncodeTime(far)
	if !errors.Is(err, ErrTimestampRange) {
		t.Errorf("err = %v, want ErrTimestampRange", err)
	}
}

func TestPayloadCodec_ZlibRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("versioned blob storage "), 100)

	blob, err := EncodePayload(CodecZlib, payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(blob) >= len(payload) {
		t.Errorf("compressed %d bytes into %d", len(payload), len(blob))
	}

	got, err := DecodePayload(CodecZlib, blob)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("round trip mismatch")
	}
}

func TestPayloadCodec_ZlibEmpty(t *testing.T) {
	blob, err := EncodePayload(CodecZlib, nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := DecodePayload(CodecZlib, blob)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}

func TestPayloadCodec_Raw(t *testing.T) {
	payload := []byte{0x00, 0xff, 0x10}

	blob, err := EncodePayload(CodecRaw, payload)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(blob, payload) {
		t.Error("raw codec should store bytes as-is")
	}

	// The encoded copy must not alias the caller's buffer.
	payload[0] = 0xaa
	if blob[0] == 0xaa {
		t.Error("encoded payload aliases caller buffer")
	}

	got, err := DecodePayload(CodecRaw, blob)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0x00, 0xff, 0x10}) {
		t.Errorf("got %v", got)
	}
}

func TestPayloadCodec_Unknown(t *testing.T) {
	if _, err := EncodePayload("snappy", []byte("x")); err == nil {
		t.Error("expected error for unknown codec")
	}
	if _, err := DecodePayload("snappy", []byte("x")); err == nil {
		t.Error("expected error for unknown codec")
	}
}
