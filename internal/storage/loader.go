// This file implements a generic, batched loader that drains write ops from
// a channel and invokes a Writer per batch.
//
// Logging: on every successful flush, a concise progress line is emitted
// with running totals and instantaneous ops/sec since the previous flush.
package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"dsvload/pkg/records"
)

// LoadBatches drains ops from 'in', groups them into batches of size
// 'batchSize', and calls w.WriteBatch for each non-empty batch. It returns
// the total number of ops handed to the writer and the first error
// encountered.
//
// The function returns when the input channel is closed (after flushing the
// final partial batch) or when ctx is canceled, in which case it returns
// (total, ctx.Err()).
func LoadBatches(
	ctx context.Context,
	in <-chan records.WriteOp,
	batchSize int,
	w Writer,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if w == nil {
		return 0, fmt.Errorf("writer must not be nil")
	}

	var (
		total       int64
		batches     int64
		batch       = make([]records.WriteOp, 0, batchSize)
		start       = time.Now()
		lastFlushTS = start
		lastTotal   int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n := len(batch)
		if err := w.WriteBatch(ctx, batch); err != nil {
			log.Printf("loader: write failed batch_size=%d total=%d err=%v", n, total, err)
			return err
		}
		total += int64(n)
		// Reuse the allocated slice; keep capacity to avoid churn.
		batch = batch[:0]

		batches++
		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		ops := float64(0)
		if sinceLast > 0 {
			ops = float64(total-lastTotal) / sinceLast.Seconds()
		}
		log.Printf("batch #%d: ops_per_sec=%.0f written=%d total_written=%d elapsed=%s",
			batches, ops, n, total, now.Sub(start).Round(time.Millisecond))
		lastFlushTS = now
		lastTotal = total
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case op, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				return total, nil
			}
			batch = append(batch, op)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}
