package sync

import (
	"context"
	"log"
	"os"

	"github.com/gridsync/gridsync/internal/codec"
	"github.com/gridsync/gridsync/internal/grid"
)

// Reader fetches a replica range and decodes it into a snapshot.
type Reader struct {
	client grid.Client
	logger *log.Logger
}

// NewReader creates a snapshot reader.
// If logger is nil, a default logger writing to stderr is used.
func NewReader(client grid.Client, logger *log.Logger) *Reader {
	if logger == nil {
		logger = log.New(os.Stderr, "[read] ", log.LstdFlags)
	}
	return &Reader{client: client, logger: logger}
}

// Read fetches the named range and decodes it via the codec.
//
// The first row is the header and is skipped, as is any row whose
// identity column is empty. A malformed row still yields its decodable
// cells (the mapping error is logged, not fatal).
//
// A failed fetch degrades to an empty snapshot with a logged warning
// rather than an error. Callers must treat an empty snapshot as "empty or
// unreadable" and corroborate before trusting it as authority; the
// committer does so by never letting an empty re-read replace a merge
// built from a non-empty earlier read.
//
// The returned row count is the number of fetched rows excluding the
// header. It measures how much of the range is currently occupied, which
// drives shrinkage padding.
func (r *Reader) Read(ctx context.Context, rng string, c codec.Codec) (Snapshot, int) {
	rows, err := r.client.FetchRange(ctx, rng)
	if err != nil {
		r.logger.Printf("WARNING: degraded read of range %q, treating as empty: %v", rng, err)
		return Snapshot{}, 0
	}

	if len(rows) == 0 {
		return Snapshot{}, 0
	}

	data := rows[1:] // header row
	snapshot := make(Snapshot, 0, len(data))
	for i, row := range data {
		rec, err := c.Decode(row)
		if err != nil {
			r.logger.Printf("WARNING: partial decode of row %d in range %q: %v", i+2, rng, err)
		}
		if rec == nil || rec.ID == "" {
			continue
		}
		snapshot = append(snapshot, rec)
	}

	return snapshot, len(data)
}
