// Package record provides the data structures for gridsync record files.
//
// Each synced collection lives on disk as a directory of {id}.json files
// written by the authoritative store's export. Records carry a stable id,
// an optional monotonically increasing version, and a flat map of entity
// fields that the codec layer maps onto replica columns.
package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Record represents a single synced record stored as {id}.json.
// The structure is flat and last-write-wins friendly: every field can be
// updated independently, and Version resolves concurrent-writer conflicts.
type Record struct {
	// ID is the stable identifier assigned by the authoritative store.
	// It is unique within one collection.
	ID string `json:"id"`

	// Version is a non-decreasing revision counter, starting at 1 on the
	// first replica commit. Zero means "no version recorded".
	Version int64 `json:"version,omitempty"`

	// UpdatedAt is when the record content last changed, if known.
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Fields holds the entity payload as column-ready string values.
	// The per-collection manifest declares which keys map to which
	// replica columns.
	Fields map[string]string `json:"fields,omitempty"`
}

// Validate checks that the Record has usable field values.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.Version < 0 {
		return fmt.Errorf("version must not be negative (got %d)", r.Version)
	}
	return nil
}

// Field returns the named entity field, or "" when absent.
func (r *Record) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// SetField sets the named entity field, allocating Fields if needed.
func (r *Record) SetField(name, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.Fields[name] = value
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := &Record{
		ID:      r.ID,
		Version: r.Version,
	}
	if r.UpdatedAt != nil {
		t := *r.UpdatedAt
		c.UpdatedAt = &t
	}
	if r.Fields != nil {
		c.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			c.Fields[k] = v
		}
	}
	return c
}

// Filename returns the canonical filename for this record: {id}.json
func (r *Record) Filename() string {
	return fmt.Sprintf("%s.json", r.ID)
}

// ReadRecordFile reads and parses a record JSON file from the given path.
func ReadRecordFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record file %s: %w", path, err)
	}

	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record file %s: %w", path, err)
	}

	return &rec, nil
}

// WriteRecordFile writes a Record to dir/{id}.json with pretty-printed
// formatting, creating the directory if needed.
func WriteRecordFile(dir string, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid record: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
	}

	path := filepath.Join(dir, rec.Filename())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write record file %s: %w", path, err)
	}

	return nil
}

// ReadAllRecordFiles reads every record file from the given directory.
// A missing directory is treated as an empty collection. Invalid files are
// skipped with a warning to stderr so one bad export cannot block a commit.
func ReadAllRecordFiles(dir string) ([]*Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Record{}, nil
		}
		return nil, fmt.Errorf("failed to read record directory: %w", err)
	}

	var records []*Record
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		rec, err := ReadRecordFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping invalid record file %s: %v\n", entry.Name(), err)
			continue
		}

		records = append(records, rec)
	}

	return records, nil
}
