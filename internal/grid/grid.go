// Package grid provides the client for the remote tabular replica.
//
// The replica is a non-transactional grid service: the only operations are
// fetching, clearing and overwriting a fixed named range. There are no row
// inserts, deletes or transactions, which is why the sync engine layers
// optimistic concurrency control on top (see internal/sync).
package grid

import (
	"context"
	"fmt"
)

// Client is the replica range API consumed by the sync engine. Each call
// is individually atomic on the service side; there is no cross-call
// transaction.
type Client interface {
	// FetchRange reads every row currently stored in the named range.
	FetchRange(ctx context.Context, rng string) ([][]string, error)

	// ClearRange blanks the named range.
	ClearRange(ctx context.Context, rng string) error

	// WriteRange overwrites the named range with the given rows in one
	// call. Rows beyond the written payload keep their previous content,
	// which is why shrinking payloads must be padded by the caller.
	WriteRange(ctx context.Context, rng string, rows [][]string) error
}

// ReadError wraps a failed range fetch. Reads are treated as soft
// failures by the engine: they are logged and degrade to an empty
// snapshot rather than aborting the commit outright.
type ReadError struct {
	Range string
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to fetch range %q: %v", e.Range, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError wraps a failed range write or clear. Writes are fatal for
// the commit and propagate to the caller; since the write is the single
// terminal step, no partial state is persisted.
type WriteError struct {
	Range string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write range %q: %v", e.Range, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
