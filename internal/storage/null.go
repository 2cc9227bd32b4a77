package storage

import (
	"context"
	"sync/atomic"

	"dsvload/pkg/records"
)

// Null is a Writer that discards every op while counting it. It backs dry
// runs and tests.
type Null struct{ n atomic.Int64 }

// WriteBatch counts the ops and drops them.
func (w *Null) WriteBatch(_ context.Context, ops []records.WriteOp) error {
	w.n.Add(int64(len(ops)))
	return nil
}

// Count returns the number of ops written so far.
func (w *Null) Count() int64 { return w.n.Load() }
