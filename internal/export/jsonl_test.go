package export

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gridsync/gridsync/internal/record"
)

func writeJSONL(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dump.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("failed to write dump: %v", err)
	}
	return path
}

func TestFromJSONL(t *testing.T) {
	path := writeJSONL(t,
		`{"id":"a","version":1,"fields":{"title":"Alpha"}}`,
		`{"id":"b","version":2}`,
	)

	records, err := FromJSONL(path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "a" || records[0].Field("title") != "Alpha" {
		t.Errorf("record 0 = %+v", records[0])
	}
}

func TestFromJSONLInvalid(t *testing.T) {
	path := writeJSONL(t, `{"id":"a"}`, `{broken`)

	if _, err := FromJSONL(path); err == nil {
		t.Errorf("expected an error for malformed JSON")
	}
}

func TestImport(t *testing.T) {
	path := writeJSONL(t,
		`{"id":"a","version":1}`,
		`{"version":2}`, // no id: invalid, skipped
		`{"id":"c"}`,
	)
	dir := filepath.Join(t.TempDir(), "tasks")

	result, err := Import(ImportOptions{FromJSONL: path, ToDir: dir})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.RecordsRead != 3 || result.FilesWritten != 2 {
		t.Errorf("result = %+v, want 3 read, 2 written", result)
	}
	if len(result.Errors) != 1 {
		t.Errorf("errors = %v, want the invalid record reported", result.Errors)
	}

	records, err := record.ReadAllRecordFiles(dir)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 record files, got %d", len(records))
	}
}

func TestImportDryRun(t *testing.T) {
	path := writeJSONL(t, `{"id":"a"}`)
	dir := filepath.Join(t.TempDir(), "tasks")

	result, err := Import(ImportOptions{FromJSONL: path, ToDir: dir, DryRun: true})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.FilesWritten != 1 {
		t.Errorf("files written = %d, want 1 counted", result.FilesWritten)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("dry run must not create the record directory")
	}
}

func TestExportSortedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"c", "a", "b"} {
		if err := record.WriteRecordFile(dir, &record.Record{ID: id, Version: 1}); err != nil {
			t.Fatalf("failed to seed record: %v", err)
		}
	}

	out := filepath.Join(t.TempDir(), "dump.jsonl")
	count, err := Export(dir, out)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	file, err := os.Open(out)
	if err != nil {
		t.Fatalf("failed to open dump: %v", err)
	}
	defer file.Close()

	var ids []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(ids))
	}
	for i, prefix := range []string{`{"id":"a"`, `{"id":"b"`, `{"id":"c"`} {
		if !strings.HasPrefix(ids[i], prefix) {
			t.Errorf("line %d = %q, want ascending id order", i, ids[i])
		}
	}

	records, err := FromJSONL(out)
	if err != nil {
		t.Fatalf("round trip parse failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("round trip lost records: %d", len(records))
	}
}

func TestExportEmptyDir(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dump.jsonl")
	count, err := Export(filepath.Join(t.TempDir(), "nope"), out)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}
