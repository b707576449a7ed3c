package engine

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(filepath.Join(t.TempDir(), "test.db"), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestOpen_Memory(t *testing.T) {
	e, err := Open(":memory:", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if e.Path() != ":memory:" {
		t.Errorf("Path = %q", e.Path())
	}
}

func TestWithTx_Commit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	err := e.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("CREATE TABLE t (a INTEGER)"); err != nil {
			return err
		}
		_, err := tx.Exec("INSERT INTO t (a) VALUES (1)")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	var n int
	err = e.WithReadTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRow("SELECT COUNT(*) FROM t").Scan(&n)
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec("CREATE TABLE t (a INTEGER)")
		return err
	}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := e.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO t (a) VALUES (1)"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	var n int
	e.WithReadTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRow("SELECT COUNT(*) FROM t").Scan(&n)
	})
	if n != 0 {
		t.Errorf("count = %d, want 0 after rollback", n)
	}
}

func TestWithLockedTx_ReadThenWrite(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Read before write inside one transaction, the pattern that
	// needs the write lock held from the start.
	err := e.WithLockedTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRow("SELECT COUNT(*) FROM sqlite_master").Scan(&n); err != nil {
			return err
		}
		_, err := tx.Exec("CREATE TABLE t (a INTEGER)")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	var n int
	err = e.WithReadTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRow("SELECT COUNT(*) FROM t").Scan(&n)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWithLockedTx_RollbackOnError(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := e.WithLockedTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("CREATE TABLE t (a INTEGER)"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	err = e.WithReadTx(ctx, func(tx *sql.Tx) error {
		var n int
		return tx.QueryRow("SELECT COUNT(*) FROM t").Scan(&n)
	})
	if err == nil {
		t.Error("table t should not exist after rollback")
	}
}

func TestIsConstraintViolation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	err := e.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec("CREATE TABLE t (a TEXT, b INTEGER, PRIMARY KEY (a, b))")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	insert := func() error {
		return e.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.Exec("INSERT INTO t (a, b) VALUES ('x', 1)")
			return err
		})
	}
	if err := insert(); err != nil {
		t.Fatal(err)
	}

	err = insert()
	if err == nil {
		t.Fatal("expected constraint violation")
	}
	if !IsConstraintViolation(err) {
		t.Errorf("IsConstraintViolation(%v) = false", err)
	}
}

func TestIsConstraintViolation_OtherErrors(t *testing.T) {
	if IsConstraintViolation(nil) {
		t.Error("nil should not be a constraint violation")
	}
	if IsConstraintViolation(errors.New("plain")) {
		t.Error("plain error should not be a constraint violation")
	}
}
