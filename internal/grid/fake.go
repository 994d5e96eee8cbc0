package grid

import (
	"context"
	"sync"
	"time"
)

// FakeOp records one call against the Fake, with entry and exit times so
// tests can assert that locked regions never overlap.
type FakeOp struct {
	Kind    string // "fetch", "clear", "write"
	Range   string
	Rows    int
	Entered time.Time
	Exited  time.Time
}

// Fake is an in-memory Client for tests and load testing. It stores rows
// per range, supports error injection, and exposes hooks that run while a
// call is in flight so tests can simulate interleaving external writers.
type Fake struct {
	mu     sync.Mutex
	ranges map[string][][]string
	ops    []FakeOp

	// FetchErr, ClearErr and WriteErr, when set, are returned by the
	// corresponding call instead of touching state.
	FetchErr error
	ClearErr error
	WriteErr error

	// OnFetch runs after a fetch snapshot is taken but before it is
	// returned. It may mutate the fake (via Seed) to emulate an external
	// writer racing the caller.
	OnFetch func(rng string)

	// Latency, when non-zero, is slept inside every call while no fake
	// lock is held, widening race windows for concurrency tests.
	Latency time.Duration
}

// NewFake creates an empty fake replica.
func NewFake() *Fake {
	return &Fake{ranges: make(map[string][][]string)}
}

// Seed replaces the rows stored in the named range.
func (f *Fake) Seed(rng string, rows [][]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges[rng] = cloneRows(rows)
}

// Rows returns a copy of the rows currently stored in the named range.
func (f *Fake) Rows(rng string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneRows(f.ranges[rng])
}

// Ops returns a copy of the recorded call log.
func (f *Fake) Ops() []FakeOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]FakeOp, len(f.ops))
	copy(ops, f.ops)
	return ops
}

// FetchRange implements Client.FetchRange.
func (f *Fake) FetchRange(ctx context.Context, rng string) ([][]string, error) {
	entered := time.Now()
	f.sleep()

	f.mu.Lock()
	if f.FetchErr != nil {
		err := f.FetchErr
		f.ops = append(f.ops, FakeOp{Kind: "fetch", Range: rng, Entered: entered, Exited: time.Now()})
		f.mu.Unlock()
		return nil, &ReadError{Range: rng, Err: err}
	}
	rows := cloneRows(f.ranges[rng])
	hook := f.OnFetch
	f.mu.Unlock()

	if hook != nil {
		hook(rng)
	}

	f.mu.Lock()
	f.ops = append(f.ops, FakeOp{Kind: "fetch", Range: rng, Rows: len(rows), Entered: entered, Exited: time.Now()})
	f.mu.Unlock()
	return rows, nil
}

// ClearRange implements Client.ClearRange.
func (f *Fake) ClearRange(ctx context.Context, rng string) error {
	entered := time.Now()
	f.sleep()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ClearErr != nil {
		f.ops = append(f.ops, FakeOp{Kind: "clear", Range: rng, Entered: entered, Exited: time.Now()})
		return &WriteError{Range: rng, Err: f.ClearErr}
	}
	delete(f.ranges, rng)
	f.ops = append(f.ops, FakeOp{Kind: "clear", Range: rng, Entered: entered, Exited: time.Now()})
	return nil
}

// WriteRange implements Client.WriteRange.
func (f *Fake) WriteRange(ctx context.Context, rng string, rows [][]string) error {
	entered := time.Now()
	f.sleep()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteErr != nil {
		f.ops = append(f.ops, FakeOp{Kind: "write", Range: rng, Rows: len(rows), Entered: entered, Exited: time.Now()})
		return &WriteError{Range: rng, Err: f.WriteErr}
	}
	f.ranges[rng] = cloneRows(rows)
	f.ops = append(f.ops, FakeOp{Kind: "write", Range: rng, Rows: len(rows), Entered: entered, Exited: time.Now()})
	return nil
}

func (f *Fake) sleep() {
	if f.Latency > 0 {
		time.Sleep(f.Latency)
	}
}

func cloneRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}
