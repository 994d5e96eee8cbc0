// Package codec maps records onto replica rows and back.
//
// Each collection declares its column layout in the manifest (see
// LoadManifest). A FieldCodec built from that declaration encodes records
// into cell rows for range writes and decodes fetched rows into records.
// Decoding is total: malformed cells produce a best-effort partial record
// together with a MappingError, never a batch abort.
package codec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gridsync/gridsync/internal/record"
)

// Reserved field names that map onto record metadata rather than the
// entity payload.
const (
	FieldID        = "id"
	FieldVersion   = "version"
	FieldUpdatedAt = "updated_at"
)

// TimeLayout is the cell format for timestamp columns.
const TimeLayout = time.RFC3339

// Column declares a single replica column and the record field it carries.
type Column struct {
	// Name is the column header as written to the replica.
	Name string `yaml:"name"`

	// Field is the record field backing this column. The reserved names
	// "id", "version" and "updated_at" address record metadata; any other
	// value addresses the entity payload.
	Field string `yaml:"field"`

	// Required marks columns that must be non-empty when encoding.
	Required bool `yaml:"required,omitempty"`
}

// Codec converts between records and replica rows for one collection.
type Codec interface {
	// Header returns the header row written as the first row of the range.
	Header() []string

	// Encode converts a record into one cell row, column order matching
	// Header.
	Encode(rec *record.Record) []string

	// Decode converts one fetched cell row into a record. A malformed row
	// yields a best-effort partial record and a *MappingError describing
	// what could not be mapped; the record is still usable.
	Decode(row []string) (*record.Record, error)
}

// MappingError reports cells that could not be decoded. It is advisory:
// the accompanying record carries every value that did map.
type MappingError struct {
	ID       string
	Problems []string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("record %q: %s", e.ID, strings.Join(e.Problems, "; "))
}

// FieldCodec implements Codec from an explicit column declaration.
type FieldCodec struct {
	columns []Column
	idIndex int
}

// NewFieldCodec builds a FieldCodec from the given columns.
//
// Exactly one column must be backed by the "id" field, and column names
// must be unique.
func NewFieldCodec(columns []Column) (*FieldCodec, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("at least one column is required")
	}

	idIndex := -1
	seen := make(map[string]bool, len(columns))
	for i, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if col.Field == "" {
			return nil, fmt.Errorf("column %q has no backing field", col.Name)
		}
		if seen[col.Name] {
			return nil, fmt.Errorf("duplicate column name %q", col.Name)
		}
		seen[col.Name] = true

		if col.Field == FieldID {
			if idIndex >= 0 {
				return nil, fmt.Errorf("more than one column backed by the id field")
			}
			idIndex = i
		}
	}
	if idIndex < 0 {
		return nil, fmt.Errorf("no column is backed by the id field")
	}

	return &FieldCodec{columns: columns, idIndex: idIndex}, nil
}

// Header implements Codec.Header.
func (c *FieldCodec) Header() []string {
	header := make([]string, len(c.columns))
	for i, col := range c.columns {
		header[i] = col.Name
	}
	return header
}

// IDIndex returns the zero-based index of the identity column.
func (c *FieldCodec) IDIndex() int {
	return c.idIndex
}

// Encode implements Codec.Encode.
func (c *FieldCodec) Encode(rec *record.Record) []string {
	row := make([]string, len(c.columns))
	for i, col := range c.columns {
		switch col.Field {
		case FieldID:
			row[i] = rec.ID
		case FieldVersion:
			if rec.Version > 0 {
				row[i] = strconv.FormatInt(rec.Version, 10)
			}
		case FieldUpdatedAt:
			if rec.UpdatedAt != nil {
				row[i] = rec.UpdatedAt.UTC().Format(TimeLayout)
			}
		default:
			row[i] = rec.Field(col.Field)
		}
	}
	return row
}

// Decode implements Codec.Decode.
func (c *FieldCodec) Decode(row []string) (*record.Record, error) {
	rec := &record.Record{}
	var problems []string

	for i, col := range c.columns {
		var cell string
		if i < len(row) {
			cell = row[i]
		} else if col.Required {
			problems = append(problems, fmt.Sprintf("missing cell for column %q", col.Name))
			continue
		}

		switch col.Field {
		case FieldID:
			rec.ID = cell
		case FieldVersion:
			if cell == "" {
				continue
			}
			v, err := strconv.ParseInt(cell, 10, 64)
			if err != nil || v < 0 {
				problems = append(problems, fmt.Sprintf("bad version %q in column %q", cell, col.Name))
				continue
			}
			rec.Version = v
		case FieldUpdatedAt:
			if cell == "" {
				continue
			}
			t, err := time.Parse(TimeLayout, cell)
			if err != nil {
				problems = append(problems, fmt.Sprintf("bad timestamp %q in column %q", cell, col.Name))
				continue
			}
			rec.UpdatedAt = &t
		default:
			if cell == "" && !col.Required {
				continue
			}
			rec.SetField(col.Field, cell)
		}
	}

	if len(problems) > 0 {
		return rec, &MappingError{ID: rec.ID, Problems: problems}
	}
	return rec, nil
}
