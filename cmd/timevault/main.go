// Package main is the command-line front end for the timevault store.
//
// Usage:
//
//	timevault put -key report.csv -ts 2026-01-02T15:04:05Z [file]
//	timevault get -key report.csv -ts 2026-01-02T15:04:05Z
//	timevault latest -key report.csv
//	timevault list [-key report.csv]
//	timevault delete -key report.csv -ts 2026-01-02T15:04:05Z
//	timevault prune -older-than 2025-01-01T00:00:00Z
//	timevault info
//	timevault version
//
// The database path comes from -db or the TIMEVAULT_DB environment
// variable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/timevault/timevault"
)

const (
	version = "0.1.0"
	appName = "timevault"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "put":
		err = runPut(args)
	case "get":
		err = runGet(args)
	case "latest":
		err = runLatest(args)
	case "list":
		err = runList(args)
	case "delete":
		err = runDelete(args)
	case "prune":
		err = runPrune(args)
	case "info":
		err = runInfo(args)
	case "version":
		fmt.Printf("%s v%s\n", appName, version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `%s v%s — versioned blob storage on SQLite

Usage:
  %s <command> [flags]

Commands:
  put      Store a payload under a key and timestamp (stdin or file arg)
  get      Print the payload for an exact key and timestamp
  latest   Print the newest payload for a key
  list     List timestamps for a key, or all (key, timestamp) pairs
  delete   Remove the entry for an exact key and timestamp
  prune    Remove all entries older than a timestamp
  info     Print store identity and counters
  version  Print version

The database path comes from -db or $TIMEVAULT_DB.
`, appName, version, appName)
}

// newFlags builds a flag set with the flags every subcommand shares.
func newFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	db := fs.String("db", "", "database path (default $TIMEVAULT_DB)")
	return fs, db
}

func resolveDBPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv("TIMEVAULT_DB"); env != "" {
		return env, nil
	}
	return "", errors.New("no database path: pass -db or set TIMEVAULT_DB")
}

// parseTimestamp accepts RFC 3339 with or without fractional seconds.
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("timestamp required (RFC 3339, e.g. 2026-01-02T15:04:05Z)")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func openStore(dbFlag string) (*timevault.Store, error) {
	path, err := resolveDBPath(dbFlag)
	if err != nil {
		return nil, err
	}
	return timevault.Open(path)
}

func runPut(args []string) error {
	fs, db := newFlags("put")
	key := fs.String("key", "", "entry key")
	tsArg := fs.String("ts", "", "entry timestamp (RFC 3339)")
	fs.Parse(args)

	ts, err := parseTimestamp(*tsArg)
	if err != nil {
		return err
	}

	var payload []byte
	if fs.NArg() > 0 {
		payload, err = os.ReadFile(fs.Arg(0))
	} else {
		payload, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return err
	}

	s, err := openStore(*db)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Put(context.Background(), *key, ts, payload)
}

func runGet(args []string) error {
	fs, db := newFlags("get")
	key := fs.String("key", "", "entry key")
	tsArg := fs.String("ts", "", "entry timestamp (RFC 3339)")
	fs.Parse(args)

	ts, err := parseTimestamp(*tsArg)
	if err != nil {
		return err
	}

	s, err := openStore(*db)
	if err != nil {
		return err
	}
	defer s.Close()

	e, err := s.Get(context.Background(), *key, ts)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("no entry for %q @ %s", *key, ts.Format(time.RFC3339Nano))
	}
	_, err = os.Stdout.Write(e.Payload)
	return err
}

func runLatest(args []string) error {
	fs, db := newFlags("latest")
	key := fs.String("key", "", "entry key")
	fs.Parse(args)

	s, err := openStore(*db)
	if err != nil {
		return err
	}
	defer s.Close()

	e, err := s.Latest(context.Background(), *key)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("no entries for %q", *key)
	}
	_, err = os.Stdout.Write(e.Payload)
	return err
}

func runList(args []string) error {
	fs, db := newFlags("list")
	key := fs.String("key", "", "limit to one key (optional)")
	fs.Parse(args)

	s, err := openStore(*db)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	if *key != "" {
		cur, err := s.ListByKey(ctx, *key)
		if err != nil {
			return err
		}
		defer cur.Close()
		for cur.Next() {
			e := cur.Entry()
			fmt.Printf("%s\t%d bytes\n", e.Timestamp.Format(time.RFC3339Nano), len(e.Payload))
		}
		return cur.Err()
	}

	cur, err := s.ListAll(ctx)
	if err != nil {
		return err
	}
	defer cur.Close()
	for cur.Next() {
		k, ts := cur.Pair()
		fmt.Printf("%s\t%s\n", k, ts.Format(time.RFC3339Nano))
	}
	return cur.Err()
}

func runDelete(args []string) error {
	fs, db := newFlags("delete")
	key := fs.String("key", "", "entry key")
	tsArg := fs.String("ts", "", "entry timestamp (RFC 3339)")
	fs.Parse(args)

	ts, err := parseTimestamp(*tsArg)
	if err != nil {
		return err
	}

	s, err := openStore(*db)
	if err != nil {
		return err
	}
	defer s.Close()

	removed, err := s.Delete(context.Background(), *key, ts)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(os.Stderr, "no entry for %q @ %s\n", *key, ts.Format(time.RFC3339Nano))
	}
	return nil
}

func runPrune(args []string) error {
	fs, db := newFlags("prune")
	olderThan := fs.String("older-than", "", "delete entries older than this timestamp (RFC 3339)")
	fs.Parse(args)

	cutoff, err := parseTimestamp(*olderThan)
	if err != nil {
		return err
	}

	s, err := openStore(*db)
	if err != nil {
		return err
	}
	defer s.Close()

	removed, err := s.Prune(context.Background(), cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d entries\n", removed)
	return nil
}

func runInfo(args []string) error {
	fs, db := newFlags("info")
	fs.Parse(args)

	s, err := openStore(*db)
	if err != nil {
		return err
	}
	defer s.Close()

	count, err := s.Count(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("id:      %s\n", s.ID())
	fmt.Printf("entries: %d\n", count)
	for c, v := range s.Metrics().Snapshot() {
		fmt.Printf("%s: %d\n", c, v)
	}
	return nil
}
