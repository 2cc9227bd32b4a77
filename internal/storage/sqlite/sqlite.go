// Package sqlite implements a SQLite-backed storage.Writer using
// database/sql. Write ops are staged one row per bin inside a transaction;
// SQLite has no dedicated bulk-load API, but transactions keep throughput
// acceptable for moderate volumes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // cgo-free SQLite driver

	"dsvload/pkg/records"
)

// Config holds SQLite sink configuration.
type Config struct {
	// DSN is passed to database/sql, e.g. "file:staging.db?cache=shared"
	// or a bare path.
	DSN string

	// Table is the staging table name. Default "kv_staging".
	Table string
}

// Sink is a SQLite-backed implementation of storage.Writer.
type Sink struct {
	db    *sql.DB
	table string
}

// New opens the SQLite database, creates the staging table when absent, and
// returns the Sink plus a close function for cleanup.
func New(ctx context.Context, cfg Config) (*Sink, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	table := cfg.Table
	if table == "" {
		table = "kv_staging"
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		set_name   TEXT NOT NULL,
		record_key TEXT NOT NULL,
		bin_name   TEXT NOT NULL,
		bin_value  BLOB
	)`, table)
	if _, err := db.ExecContext(ctx, create); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: create table %s: %w", table, err)
	}

	return &Sink{db: db, table: table}, func() { db.Close() }, nil
}

// WriteBatch stages every bin of every op inside one transaction.
func (s *Sink) WriteBatch(ctx context.Context, ops []records.WriteOp) error {
	if len(ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %q (set_name, record_key, bin_name, bin_value) VALUES (?, ?, ?, ?)", s.table))
	if err != nil {
		return fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	for _, op := range ops {
		key := keyText(op.Key)
		for _, bin := range op.Bins {
			if _, err := stmt.ExecContext(ctx, op.SetName, key, bin.Name, bin.Value); err != nil {
				return fmt.Errorf("sqlite: insert set=%s key=%s bin=%s: %w", op.SetName, key, bin.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func keyText(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case []byte:
		return string(k)
	default:
		return fmt.Sprint(k)
	}
}
