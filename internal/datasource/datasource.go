// Package datasource abstracts where configuration and data text comes from.
// Implementations yield plain readers; parsing is someone else's job.
package datasource

import (
	"context"
	"io"
)

// Source opens a text payload for reading. Open may be called more than once
// to re-read the same payload.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
