// Package storage contains storage-agnostic contracts and utilities for the
// loader's write side. Concrete sinks (SQLite, Postgres) live in
// subpackages; this package only knows about batches of write operations.
package storage

import (
	"context"

	"dsvload/pkg/records"
)

// Writer persists a batch of write operations. Implementations must be safe
// for calls from multiple goroutines and should cancel promptly when ctx is
// done. The loader does not retry: a failed batch fails the run.
type Writer interface {
	WriteBatch(ctx context.Context, ops []records.WriteOp) error
}
