package codec

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// CollectionSpec declares how one collection maps onto the replica: which
// ranges to read, clear and write, and the column layout. The three ranges
// are often identical; they are kept separate because some deployments
// read a wider range than they write.
type CollectionSpec struct {
	// Dir is the record directory relative to the data dir. Defaults to
	// the collection key.
	Dir string `yaml:"dir,omitempty"`

	ReadRange  string `yaml:"read_range"`
	ClearRange string `yaml:"clear_range,omitempty"`
	WriteRange string `yaml:"write_range,omitempty"`

	Columns []Column `yaml:"columns"`
}

// Manifest declares every synced collection, keyed by collection name.
//
// Example manifest:
//
//	collections:
//	  orders:
//	    read_range: "Orders!A1:F2000"
//	    columns:
//	      - {name: "Order ID", field: id, required: true}
//	      - {name: "Rev", field: version}
//	      - {name: "Customer", field: customer, required: true}
//	      - {name: "Total", field: total}
type Manifest struct {
	Collections map[string]CollectionSpec `yaml:"collections"`
}

// LoadManifest reads and validates a YAML manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	return &m, nil
}

// Validate checks every collection spec and applies range defaults:
// clear_range and write_range fall back to read_range, and dir falls back
// to the collection key.
func (m *Manifest) Validate() error {
	if len(m.Collections) == 0 {
		return fmt.Errorf("no collections declared")
	}

	for key, spec := range m.Collections {
		if spec.ReadRange == "" {
			return fmt.Errorf("collection %q: read_range is required", key)
		}
		if spec.ClearRange == "" {
			spec.ClearRange = spec.ReadRange
		}
		if spec.WriteRange == "" {
			spec.WriteRange = spec.ReadRange
		}
		if spec.Dir == "" {
			spec.Dir = key
		}
		if _, err := NewFieldCodec(spec.Columns); err != nil {
			return fmt.Errorf("collection %q: %w", key, err)
		}
		m.Collections[key] = spec
	}

	return nil
}

// Keys returns the collection names in sorted order.
func (m *Manifest) Keys() []string {
	keys := make([]string, 0, len(m.Collections))
	for key := range m.Collections {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Codec builds the FieldCodec for this collection.
func (s *CollectionSpec) Codec() (*FieldCodec, error) {
	return NewFieldCodec(s.Columns)
}
