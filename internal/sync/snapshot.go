package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/gridsync/gridsync/internal/record"
)

// Snapshot is the set of records for one collection at one point in time,
// either supplied by the caller (intended state) or decoded from the
// replica (last persisted state). Order carries no meaning.
type Snapshot []*record.Record

// Sorted returns a copy of the snapshot in ascending id order. Merged
// output is emitted in this order so that commits and tests are
// deterministic.
func (s Snapshot) Sorted() Snapshot {
	out := make(Snapshot, len(s))
	copy(out, s)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Signature returns a deterministic digest over the snapshot's sorted
// (id, version) pairs. Two reads of the same range with equal signatures
// are assumed to have seen no interleaving write. The digest is a cheap
// change detector, not a cryptographic commitment: a content mutation
// that keeps id and version fixed is invisible to it.
func (s Snapshot) Signature() string {
	pairs := make([]string, len(s))
	for i, rec := range s {
		pairs[i] = fmt.Sprintf("%s:%d", rec.ID, rec.Version)
	}
	sort.Strings(pairs)

	sum := sha256.Sum256([]byte(strings.Join(pairs, "\n")))
	return hex.EncodeToString(sum[:])
}

// IDs returns the sorted ids present in the snapshot.
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s))
	for i, rec := range s {
		ids[i] = rec.ID
	}
	sort.Strings(ids)
	return ids
}

// Find returns the record with the given id, or nil.
func (s Snapshot) Find(id string) *record.Record {
	for _, rec := range s {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}
