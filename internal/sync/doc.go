// Package sync implements the optimistic replica synchronization engine.
//
// # Overview
//
// gridsync reconciles an authoritative per-record store (exported as
// directories of JSON record files) with a remote tabular replica that
// supports only fixed-range read, clear and overwrite. Because the
// replica has no transactions and no delete, the engine provides the
// guarantees the storage cannot:
//
//   - optimistic concurrency control with a signature re-check
//   - version-based conflict detection between concurrent writers
//   - bounded retry under sustained contention
//   - per-collection write serialization within one process
//   - blank-row padding so a shrinking dataset overwrites its own
//     stale trailing rows
//
// # Architecture
//
// One commit flows through the engine as:
//
//	local record files ──► Snapshot ─┐
//	                                 ├─► Merger ─► merged + conflicts
//	replica range ──► Reader ────────┘       │
//	        ▲                                ▼
//	        └── re-read / signature check ◄──┤
//	                                         ▼
//	               Codec.Encode ─► padded payload ─► one WriteRange
//
// The Coordinator owns the per-collection mutexes and the single
// conflict-handler slot. The lock gives strict non-overlap per key
// inside one process only; interleaving writers in other processes are
// detected by comparing range signatures between two reads, re-merging
// while the signature keeps moving, and giving up with
// ConflictExhaustedError once the retry budget is spent.
//
// # Usage
//
//	client, err := grid.NewHTTPClient(grid.HTTPConfig{
//	    BaseURL: "https://grid.example.com/api",
//	    Token:   grid.StaticToken(token),
//	})
//	if err != nil {
//	    return err
//	}
//
//	coord := sync.New(client, cache, nil)
//	coord.SetConflictHandler(func(key string, conflicts []sync.Conflict) {
//	    for _, c := range conflicts {
//	        log.Printf("%s: %s superseded by remote v%d", key, c.Local.ID, c.Remote.Version)
//	    }
//	})
//
//	result, err := coord.Commit(ctx, sync.CommitRequest{
//	    Key:       "orders",
//	    Local:     records,
//	    Codec:     ordersCodec,
//	    ReadRange: "Orders!A1:F2000",
//	})
//
// # Error handling
//
// Reads fail soft: a failed range fetch degrades to an empty snapshot
// and a logged warning, and an empty re-read never overrides a merge
// built from a non-empty earlier read. Writes fail hard: the range write
// is the single terminal step, so a write error propagates with no
// partial state persisted. Conflicts are advisory and are delivered to
// the registered handler without affecting the commit.
//
// # Concurrency
//
// Commits for the same collection key are mutually exclusive within one
// process and always release the lock, on success and on failure alike.
// Different keys proceed independently. There is no cancellation of a
// commit once its write has started; context cancellation is honored at
// the network calls.
package sync
