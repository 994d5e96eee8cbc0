// Package loadtest provides a contention harness for the sync engine.
//
// It drives many concurrent commits through one Coordinator against an
// in-memory fake replica while an injected external writer keeps
// mutating the range, validating that commits stay serialized per key,
// that the retry loop absorbs moderate contention, and what latency the
// engine delivers while doing so.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	gosync "sync"
	"time"

	"github.com/gridsync/gridsync/internal/codec"
	"github.com/gridsync/gridsync/internal/grid"
	"github.com/gridsync/gridsync/internal/record"
	"github.com/gridsync/gridsync/internal/sync"
)

// Options configures a load test run.
type Options struct {
	// Workers is the number of concurrent committers (default: 10).
	Workers int

	// CommitsPerWorker is how many commits each worker issues
	// (default: 20).
	CommitsPerWorker int

	// Records is the snapshot size each commit carries (default: 50).
	Records int

	// ContentionPct is the probability (0..1) that an external writer
	// mutates the range while a commit is between its two reads
	// (default: 0.2).
	ContentionPct float64

	// SharedKey makes every worker commit the same collection,
	// exercising the per-key lock; otherwise each worker gets its own
	// collection (default: true).
	SharedKey bool
}

// LatencyStats captures performance metrics from a run.
type LatencyStats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
	P50  time.Duration
	P95  time.Duration
	P99  time.Duration
}

// Result summarizes a load test run.
type Result struct {
	Commits    int
	Failed     int
	Exhausted  int
	Conflicts  int
	Attempts   int
	Latency    LatencyStats
	WallClock  time.Duration
}

// Run executes the load test and returns aggregate statistics.
func Run(opts Options) (*Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = 10
	}
	if opts.CommitsPerWorker <= 0 {
		opts.CommitsPerWorker = 20
	}
	if opts.Records <= 0 {
		opts.Records = 50
	}

	fake := grid.NewFake()

	// Per-commit engine logging would drown the summary at these volumes.
	cfg := sync.DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)
	coord := sync.New(fake, nil, cfg)

	cdc, err := codec.NewFieldCodec([]codec.Column{
		{Name: "ID", Field: codec.FieldID, Required: true},
		{Name: "Rev", Field: codec.FieldVersion},
		{Name: "Payload", Field: "payload"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build codec: %w", err)
	}

	// External writer: bump a random row's version during a fetch so the
	// committer's signature re-check trips.
	var interferenceMu gosync.Mutex
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	fake.OnFetch = func(rangeName string) {
		interferenceMu.Lock()
		hit := rng.Float64() < opts.ContentionPct
		interferenceMu.Unlock()
		if !hit {
			return
		}
		rows := fake.Rows(rangeName)
		if len(rows) < 2 {
			return
		}
		i := 1 + rand.Intn(len(rows)-1)
		if len(rows[i]) >= 2 && rows[i][0] != "" {
			rows[i][1] = fmt.Sprintf("%d", time.Now().UnixNano()%1000000)
			fake.Seed(rangeName, rows)
		}
	}

	result := &Result{}
	var resultMu gosync.Mutex
	var durations []time.Duration

	start := time.Now()
	var wg gosync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			key := "loadtest"
			if !opts.SharedKey {
				key = fmt.Sprintf("loadtest-%d", worker)
			}

			for i := 0; i < opts.CommitsPerWorker; i++ {
				local := makeSnapshot(opts.Records, int64(i+1))

				commitStart := time.Now()
				res, err := coord.Commit(context.Background(), sync.CommitRequest{
					Key:       key,
					Local:     local,
					Codec:     cdc,
					ReadRange: key,
				})
				elapsed := time.Since(commitStart)

				resultMu.Lock()
				durations = append(durations, elapsed)
				if err != nil {
					result.Failed++
					var exhausted *sync.ConflictExhaustedError
					if errors.As(err, &exhausted) {
						result.Exhausted++
					}
				} else {
					result.Commits++
					result.Conflicts += res.Conflicts
					result.Attempts += res.Attempts
				}
				resultMu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	result.WallClock = time.Since(start)
	result.Latency = computeStats(durations)
	return result, nil
}

// makeSnapshot builds a synthetic local snapshot with the given version.
func makeSnapshot(n int, version int64) []*record.Record {
	records := make([]*record.Record, n)
	for i := 0; i < n; i++ {
		rec := &record.Record{
			ID:      fmt.Sprintf("rec-%04d", i),
			Version: version,
		}
		rec.SetField("payload", fmt.Sprintf("payload-%d-%d", i, version))
		records[i] = rec
	}
	return records
}

// computeStats calculates latency percentiles from raw durations.
func computeStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	percentile := func(p float64) time.Duration {
		idx := int(float64(len(sorted)-1) * p)
		return sorted[idx]
	}

	return LatencyStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: total / time.Duration(len(sorted)),
		P50:  percentile(0.50),
		P95:  percentile(0.95),
		P99:  percentile(0.99),
	}
}
