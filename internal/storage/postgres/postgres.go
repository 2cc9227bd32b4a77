// Package postgres implements a Postgres-backed storage.Writer using pgx v5.
// Batches go through CopyFrom into a staging table, one row per bin, which is
// the cheapest bulk path Postgres offers.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dsvload/pkg/records"
)

// Config holds Postgres sink configuration.
type Config struct {
	// DSN is the pgxpool connection string.
	DSN string

	// Table is the staging table name, optionally schema-qualified
	// ("public.kv_staging"). Default "kv_staging".
	Table string
}

// Sink is a Postgres-backed implementation of storage.Writer.
type Sink struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
}

var stagingColumns = []string{"set_name", "record_key", "bin_name", "bin_value"}

// New connects, creates the staging table when absent, and returns the Sink
// plus a close function for cleanup.
func New(ctx context.Context, cfg Config) (*Sink, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	table := cfg.Table
	if table == "" {
		table = "kv_staging"
	}
	ident := pgx.Identifier(strings.Split(table, "."))

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: pool: %w", err)
	}

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		set_name   text NOT NULL,
		record_key text NOT NULL,
		bin_name   text NOT NULL,
		bin_value  text
	)`, ident.Sanitize())
	if _, err := pool.Exec(ctx, create); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres: create table %s: %w", table, err)
	}

	return &Sink{pool: pool, table: ident}, func() { pool.Close() }, nil
}

// WriteBatch copies every bin of every op into the staging table.
func (s *Sink) WriteBatch(ctx context.Context, ops []records.WriteOp) error {
	if len(ops) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(ops))
	for _, op := range ops {
		key := keyText(op.Key)
		for _, bin := range op.Bins {
			rows = append(rows, []any{op.SetName, key, bin.Name, valueText(bin.Value)})
		}
	}

	n, err := s.pool.CopyFrom(ctx, s.table, stagingColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("postgres: copy %d rows: %w", len(rows), err)
	}
	if n != int64(len(rows)) {
		return fmt.Errorf("postgres: copy reported %d of %d rows", n, len(rows))
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

func valueText(v any) any {
	if v == nil {
		return nil
	}
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return fmt.Sprintf("%x", x)
	default:
		return fmt.Sprint(x)
	}
}
