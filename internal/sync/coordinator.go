package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/gridsync/gridsync/internal/codec"
	"github.com/gridsync/gridsync/internal/grid"
	"github.com/gridsync/gridsync/internal/record"
)

// ConflictHandler receives the conflicts produced by one merge. It is
// invoked synchronously on the committing goroutine and must not block.
// A panicking handler degrades observability only; it never fails the
// commit.
type ConflictHandler func(key string, conflicts []Conflict)

// Invalidator is the read-through cache hook notified after every
// successful commit.
type Invalidator interface {
	Invalidate(key string) error
}

// Config holds tunables for a Coordinator.
type Config struct {
	// MaxRetries is the total number of verification attempts before a
	// commit is abandoned with ConflictExhaustedError (default: 3).
	MaxRetries int

	// PaddingMargin is the number of extra blank rows appended beyond
	// the observed shrinkage, as insurance when the prior row count was
	// itself read mid-change (default: 5).
	PaddingMargin int

	// Policy selects the merge policy (default: PolicyVersioned).
	Policy Policy

	// Logger for engine activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:    3,
		PaddingMargin: 5,
		Policy:        PolicyVersioned,
		Logger:        log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// CommitRequest describes one commit of a collection to the replica.
type CommitRequest struct {
	// Key identifies the collection. Commits for the same key are
	// serialized within this process.
	Key string

	// Local is the intended state of the collection. A record absent
	// here but present on the replica is only kept if the merge policy
	// keeps it; a record deleted from the authoritative store must be
	// absent from Local.
	Local []*record.Record

	// Codec maps records onto replica rows.
	Codec codec.Codec

	// ReadRange, ClearRange and WriteRange name the replica ranges.
	// They are often identical.
	ReadRange  string
	ClearRange string
	WriteRange string
}

// CommitResult summarizes a successful commit.
type CommitResult struct {
	// Records is the number of data rows written.
	Records int

	// Conflicts is the total number of conflicts surfaced while merging.
	Conflicts int

	// Attempts is the number of verification attempts used.
	Attempts int

	// PaddedRows is the number of blank rows appended to overwrite
	// stale trailing rows after the collection shrank.
	PaddedRows int

	// Duration is the wall-clock time of the commit.
	Duration time.Duration
}

// Coordinator owns the per-collection locks, the conflict handler slot
// and the optimistic commit loop. Multiple independent coordinators may
// coexist; collections only contend within one coordinator.
type Coordinator struct {
	client grid.Client
	cache  Invalidator
	config *Config
	merger *Merger
	reader *Reader
	logger *log.Logger

	mu    gosync.Mutex
	locks map[string]*gosync.Mutex

	handlerMu gosync.RWMutex
	handler   ConflictHandler
}

// New creates a Coordinator committing through the given replica client.
//
// cache may be nil when no read-through cache is in use. If config is
// nil, DefaultConfig() is used.
func New(client grid.Client, cache Invalidator, config *Config) *Coordinator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.PaddingMargin < 0 {
		config.PaddingMargin = 0
	}

	return &Coordinator{
		client: client,
		cache:  cache,
		config: config,
		merger: NewMerger(config.Policy, config.Logger),
		reader: NewReader(client, config.Logger),
		logger: config.Logger,
		locks:  make(map[string]*gosync.Mutex),
	}
}

// SetConflictHandler replaces the active conflict handler. The last
// registration wins; nil disables conflict delivery.
func (c *Coordinator) SetConflictHandler(h ConflictHandler) {
	c.handlerMu.Lock()
	c.handler = h
	c.handlerMu.Unlock()
}

// Commit reconciles the local snapshot against the replica and persists
// the merged result in a single range write.
//
// The call serializes against other commits for the same key in this
// process, then runs the optimistic loop: read, merge, re-read, verify
// the range signature, and re-merge while the signature keeps moving, up
// to MaxRetries attempts. Cross-process writers are detected only by that
// signature check; exhausting the budget returns ConflictExhaustedError
// and persists nothing.
//
// Conflicts found while merging are delivered to the conflict handler
// and counted in the result; they do not fail the commit. A failed range
// read degrades to an empty snapshot. A failed range write is fatal and
// returned as-is.
func (c *Coordinator) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	if req.Key == "" {
		return nil, fmt.Errorf("commit request has no collection key")
	}
	if req.Codec == nil {
		return nil, fmt.Errorf("commit request has no codec")
	}
	if req.ReadRange == "" {
		return nil, fmt.Errorf("commit request has no read range")
	}
	if req.ClearRange == "" {
		req.ClearRange = req.ReadRange
	}
	if req.WriteRange == "" {
		req.WriteRange = req.ReadRange
	}

	lock := c.lockFor(req.Key)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	result, err := c.commitLocked(ctx, req)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	c.logger.Printf("Committed %s: %d records, %d conflicts, %d attempts, %v",
		req.Key, result.Records, result.Conflicts, result.Attempts, result.Duration.Round(time.Millisecond))
	return result, nil
}

// commitLocked runs the optimistic read-merge-verify-write loop. The
// caller holds the collection lock.
func (c *Coordinator) commitLocked(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	local := Snapshot(req.Local)

	prev, prevCount := c.reader.Read(ctx, req.ReadRange, req.Codec)
	sig := prev.Signature()
	merged, conflicts := c.merger.Merge(local, prev)
	c.notify(req.Key, conflicts)

	result := &CommitResult{Conflicts: len(conflicts)}
	remote := prev
	occupied := prevCount

	for attempt := 1; ; attempt++ {
		result.Attempts = attempt

		cur, curCount := c.reader.Read(ctx, req.ReadRange, req.Codec)
		curSig := cur.Signature()

		if curSig == sig || curCount == 0 {
			// Stable range, or a re-read that came back empty. An empty
			// re-read can mean a failed fetch as easily as a truly empty
			// range, so the merge built from the earlier read stands.
			if curCount > 0 {
				occupied = curCount
			}
			break
		}

		if attempt >= c.config.MaxRetries {
			return nil, &ConflictExhaustedError{Key: req.Key, Attempts: attempt}
		}

		merged, conflicts = c.merger.Merge(local, cur)
		c.notify(req.Key, conflicts)
		result.Conflicts += len(conflicts)

		sig = curSig
		remote = cur
		occupied = curCount
	}

	payload, padded := c.buildPayload(req.Codec, merged, remote, occupied)
	result.Records = len(merged)
	result.PaddedRows = padded

	if len(merged) == 0 && occupied > 0 {
		// The whole collection went away. Clearing the range removes
		// stale rows outright instead of writing a sea of blanks.
		if err := c.client.ClearRange(ctx, req.ClearRange); err != nil {
			return nil, err
		}
	}
	if err := c.client.WriteRange(ctx, req.WriteRange, payload); err != nil {
		return nil, err
	}

	c.invalidate(req.Key)
	return result, nil
}

// buildPayload encodes the merged snapshot as header + data rows, bumps
// versions where this commit supersedes the replica, and appends blank
// padding when the collection shrank so stale trailing rows are
// overwritten (the replica has no delete, only range overwrite).
func (c *Coordinator) buildPayload(cdc codec.Codec, merged, remote Snapshot, occupied int) ([][]string, int) {
	header := cdc.Header()
	payload := make([][]string, 0, len(merged)+1+c.config.PaddingMargin)
	payload = append(payload, header)

	for _, rec := range merged {
		payload = append(payload, cdc.Encode(c.outgoing(rec, remote)))
	}

	padded := 0
	if len(merged) < occupied {
		padded = occupied - len(merged) + c.config.PaddingMargin
		blank := make([]string, len(header))
		for i := 0; i < padded; i++ {
			payload = append(payload, append([]string(nil), blank...))
		}
	}

	return payload, padded
}

// outgoing prepares one merged record for persistence. Under the
// versioned policy a record that the local side won over an existing
// replica row is persisted at one greater than the max of both versions;
// a record new to the replica is persisted at version 1 unless the
// caller already assigned one. Records the remote side won are persisted
// unchanged.
func (c *Coordinator) outgoing(rec *record.Record, remote Snapshot) *record.Record {
	if c.config.Policy != PolicyVersioned {
		return rec
	}

	rem := remote.Find(rec.ID)
	if rem == nil {
		if rec.Version == 0 {
			out := rec.Clone()
			out.Version = 1
			return out
		}
		return rec
	}
	if rem == rec {
		// Remote won the merge; persist the replica's record unchanged.
		return rec
	}

	out := rec.Clone()
	if rem.Version > out.Version {
		out.Version = rem.Version
	}
	out.Version++
	return out
}

// notify delivers conflicts to the active handler, if any. Handler
// panics are swallowed so the observability path cannot fail the commit.
func (c *Coordinator) notify(key string, conflicts []Conflict) {
	if len(conflicts) == 0 {
		return
	}

	c.handlerMu.RLock()
	h := c.handler
	c.handlerMu.RUnlock()
	if h == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Printf("WARNING: conflict handler panicked for %s: %v", key, r)
		}
	}()
	h(key, conflicts)
}

// invalidate drops the cached remote snapshot for the key. Invalidation
// failures leave the cache stale but never fail an already-persisted
// commit.
func (c *Coordinator) invalidate(key string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(key); err != nil {
		c.logger.Printf("WARNING: failed to invalidate cache for %s: %v", key, err)
	}
}

// lockFor returns the mutex guarding the given collection key, creating
// it on first use.
func (c *Coordinator) lockFor(key string) *gosync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.locks[key]
	if !ok {
		lock = &gosync.Mutex{}
		c.locks[key] = lock
	}
	return lock
}
