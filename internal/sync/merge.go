package sync

import (
	"log"
	"os"

	"github.com/gridsync/gridsync/internal/record"
)

// Policy selects how the merge engine resolves a record present on both
// sides.
type Policy int

const (
	// PolicyIdentity resolves every shared id to the local record and
	// never reports a conflict. Useful when the caller is the sole
	// intended writer and the replica is purely derived.
	PolicyIdentity Policy = iota

	// PolicyVersioned compares versions for a shared id: a strictly
	// higher remote version wins and is reported as a conflict,
	// otherwise the local record wins. This is the default.
	PolicyVersioned
)

// String returns a human-readable policy name.
func (p Policy) String() string {
	switch p {
	case PolicyIdentity:
		return "identity"
	case PolicyVersioned:
		return "versioned"
	default:
		return "unknown"
	}
}

// Conflict pairs the local and remote versions of one record whose remote
// version superseded the one this writer started from. Conflicts are
// advisory: the commit still proceeds with the merged result.
type Conflict struct {
	Local  *record.Record
	Remote *record.Record
}

// Merger combines a local and a remote snapshot into one logical snapshot
// plus the list of detected conflicts.
type Merger struct {
	policy Policy
	logger *log.Logger
}

// NewMerger creates a merge engine with the given policy.
// If logger is nil, a default logger writing to stderr is used.
func NewMerger(policy Policy, logger *log.Logger) *Merger {
	if logger == nil {
		logger = log.New(os.Stderr, "[merge] ", log.LstdFlags)
	}
	return &Merger{policy: policy, logger: logger}
}

// Policy returns the policy this merger applies.
func (m *Merger) Policy() Policy { return m.policy }

// Merge reconciles local against remote.
//
// The result contains every id present on either side exactly once, in
// ascending id order. Ids present on one side only are kept as-is. For
// shared ids the policy decides; only PolicyVersioned ever reports
// conflicts. Duplicate ids within a single side violate the snapshot
// contract: the last occurrence wins and a warning is logged.
func (m *Merger) Merge(local, remote Snapshot) (Snapshot, []Conflict) {
	localByID := m.dedupe(local, "local")
	remoteByID := m.dedupe(remote, "remote")

	merged := make(Snapshot, 0, len(localByID)+len(remoteByID))
	var conflicts []Conflict

	for id, loc := range localByID {
		rem, shared := remoteByID[id]
		if !shared {
			merged = append(merged, loc)
			continue
		}

		if m.policy == PolicyVersioned && rem.Version > loc.Version {
			merged = append(merged, rem)
			conflicts = append(conflicts, Conflict{Local: loc, Remote: rem})
		} else {
			merged = append(merged, loc)
		}
	}

	for id, rem := range remoteByID {
		if _, shared := localByID[id]; !shared {
			merged = append(merged, rem)
		}
	}

	return merged.Sorted(), conflicts
}

// dedupe indexes a snapshot by id, keeping the last occurrence of any
// duplicated id.
func (m *Merger) dedupe(s Snapshot, side string) map[string]*record.Record {
	byID := make(map[string]*record.Record, len(s))
	for _, rec := range s {
		if _, dup := byID[rec.ID]; dup {
			m.logger.Printf("WARNING: duplicate id %q in %s snapshot, keeping last occurrence", rec.ID, side)
		}
		byID[rec.ID] = rec
	}
	return byID
}
