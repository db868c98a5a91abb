// Package store is the terminal's durable local persistence layer: cached
// reference data, the FIFO pending-transaction queue, user settings, and the
// connectivity/sync markers the UI reads.
package store

import (
	"context"
	"errors"
)

// ErrStorage wraps any read or write failure of the underlying key-value
// store. Write failures are never swallowed; callers must see them.
var ErrStorage = errors.New("storage failure")

// Store is a generic atomic key-value persistence contract. Save and Delete
// must be atomic from the caller's perspective: a crash must not leave a
// partially written record. Load reports found=false for an absent key
// rather than an error.
type Store interface {
	Save(ctx context.Context, key string, value any) error
	Load(ctx context.Context, key string, out any) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
