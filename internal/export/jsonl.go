// Package export converts between JSONL dumps and per-record collection
// directories. The authoritative store exports collections as JSONL; the
// import seeds a record directory the daemon can mirror, and the export
// produces a dump from the current record files.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/gridsync/gridsync/internal/record"
)

// ImportOptions contains configuration for an import.
type ImportOptions struct {
	FromJSONL string // Input JSONL file path
	ToDir     string // Output record directory
	DryRun    bool   // Preview without writing
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	RecordsRead  int
	FilesWritten int
	Errors       []string
}

// FromJSONL reads a JSONL file and returns the parsed records.
// Each line holds one JSON-encoded record; blank lines are skipped.
func FromJSONL(path string) ([]*record.Record, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	var records []*record.Record
	decoder := json.NewDecoder(file)
	lineNum := 0

	for {
		var rec record.Record
		if err := decoder.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("invalid JSON at record %d: %w", lineNum+1, err)
		}
		lineNum++

		records = append(records, &rec)
	}

	return records, nil
}

// Import seeds a record directory from a JSONL dump.
//
// Invalid records are counted and reported but do not abort the import.
func Import(opts ImportOptions) (*ImportResult, error) {
	records, err := FromJSONL(opts.FromJSONL)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{RecordsRead: len(records)}
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %q: %v", rec.ID, err))
			continue
		}
		if opts.DryRun {
			result.FilesWritten++
			continue
		}
		if err := record.WriteRecordFile(opts.ToDir, rec); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.FilesWritten++
	}

	return result, nil
}

// Export writes every record in a collection directory to a JSONL file,
// in ascending id order. Returns the number of records written.
func Export(fromDir, toJSONL string) (int, error) {
	records, err := record.ReadAllRecordFiles(fromDir)
	if err != nil {
		return 0, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	// #nosec G304 - controlled path from CLI
	file, err := os.Create(toJSONL)
	if err != nil {
		return 0, fmt.Errorf("failed to create JSONL file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	encoder := json.NewEncoder(w)
	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			return 0, fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush JSONL file: %w", err)
	}

	return len(records), nil
}
