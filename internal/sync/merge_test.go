package sync

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/gridsync/gridsync/internal/record"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func rec(id string, version int64) *record.Record {
	return &record.Record{ID: id, Version: version}
}

func recWith(id string, version int64, field, value string) *record.Record {
	r := rec(id, version)
	r.SetField(field, value)
	return r
}

func TestMergeIdempotent(t *testing.T) {
	snapshot := Snapshot{rec("a", 1), rec("b", 2), rec("c", 3)}

	for _, policy := range []Policy{PolicyIdentity, PolicyVersioned} {
		merger := NewMerger(policy, testLogger())
		merged, conflicts := merger.Merge(snapshot, snapshot)

		if len(conflicts) != 0 {
			t.Errorf("policy %s: expected no conflicts, got %d", policy, len(conflicts))
		}
		if len(merged) != len(snapshot) {
			t.Errorf("policy %s: expected %d records, got %d", policy, len(snapshot), len(merged))
		}
		for _, want := range snapshot {
			got := merged.Find(want.ID)
			if got == nil {
				t.Errorf("policy %s: record %s missing from merged result", policy, want.ID)
				continue
			}
			if got.Version != want.Version {
				t.Errorf("policy %s: record %s version = %d, want %d", policy, want.ID, got.Version, want.Version)
			}
		}
	}
}

func TestMergeLocalPrecedenceIdentity(t *testing.T) {
	merger := NewMerger(PolicyIdentity, testLogger())

	local := Snapshot{recWith("x", 1, "name", "local")}
	remote := Snapshot{recWith("x", 9, "name", "remote")}

	merged, conflicts := merger.Merge(local, remote)

	if len(conflicts) != 0 {
		t.Fatalf("identity policy must never report conflicts, got %d", len(conflicts))
	}
	if got := merged.Find("x"); got == nil || got.Field("name") != "local" {
		t.Errorf("expected local record to win, got %+v", got)
	}
}

func TestMergeVersionPrecedence(t *testing.T) {
	merger := NewMerger(PolicyVersioned, testLogger())

	t.Run("remote newer wins with conflict", func(t *testing.T) {
		local := Snapshot{recWith("a", 2, "name", "old")}
		remote := Snapshot{recWith("a", 3, "name", "new")}

		merged, conflicts := merger.Merge(local, remote)

		if len(conflicts) != 1 {
			t.Fatalf("expected 1 conflict, got %d", len(conflicts))
		}
		if conflicts[0].Local.Version != 2 || conflicts[0].Remote.Version != 3 {
			t.Errorf("conflict pair = (v%d, v%d), want (v2, v3)",
				conflicts[0].Local.Version, conflicts[0].Remote.Version)
		}
		got := merged.Find("a")
		if got == nil || got.Version != 3 || got.Field("name") != "new" {
			t.Errorf("expected remote v3 to win, got %+v", got)
		}
	})

	t.Run("equal versions local wins without conflict", func(t *testing.T) {
		local := Snapshot{recWith("a", 3, "name", "mine")}
		remote := Snapshot{recWith("a", 3, "name", "theirs")}

		merged, conflicts := merger.Merge(local, remote)

		if len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %d", len(conflicts))
		}
		if got := merged.Find("a"); got == nil || got.Field("name") != "mine" {
			t.Errorf("expected local record to win, got %+v", got)
		}
	})

	t.Run("local newer wins without conflict", func(t *testing.T) {
		local := Snapshot{rec("a", 5)}
		remote := Snapshot{rec("a", 4)}

		merged, conflicts := merger.Merge(local, remote)

		if len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %d", len(conflicts))
		}
		if got := merged.Find("a"); got == nil || got.Version != 5 {
			t.Errorf("expected local v5 to win, got %+v", got)
		}
	})
}

func TestMergeUnionCompleteness(t *testing.T) {
	local := Snapshot{rec("a", 1), rec("b", 1), rec("c", 1)}
	remote := Snapshot{rec("b", 1), rec("c", 2), rec("d", 1), rec("e", 1)}

	for _, policy := range []Policy{PolicyIdentity, PolicyVersioned} {
		merger := NewMerger(policy, testLogger())
		merged, _ := merger.Merge(local, remote)

		want := []string{"a", "b", "c", "d", "e"}
		if len(merged) != len(want) {
			t.Fatalf("policy %s: expected %d records, got %d", policy, len(want), len(merged))
		}
		seen := make(map[string]int)
		for _, r := range merged {
			seen[r.ID]++
		}
		for _, id := range want {
			if seen[id] != 1 {
				t.Errorf("policy %s: id %s appears %d times, want exactly once", policy, id, seen[id])
			}
		}
	}
}

func TestMergeStableOrder(t *testing.T) {
	merger := NewMerger(PolicyVersioned, testLogger())

	local := Snapshot{rec("c", 1), rec("a", 1)}
	remote := Snapshot{rec("b", 1), rec("d", 1)}

	merged, _ := merger.Merge(local, remote)

	want := []string{"a", "b", "c", "d"}
	for i, id := range want {
		if merged[i].ID != id {
			t.Fatalf("merged[%d].ID = %s, want %s (expected ascending id order)", i, merged[i].ID, id)
		}
	}
}

func TestMergeDuplicateIDsLastWins(t *testing.T) {
	merger := NewMerger(PolicyVersioned, testLogger())

	local := Snapshot{recWith("a", 1, "name", "first"), recWith("a", 1, "name", "second")}
	merged, conflicts := merger.Merge(local, Snapshot{})

	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %d", len(conflicts))
	}
	if len(merged) != 1 {
		t.Fatalf("expected duplicate to collapse to 1 record, got %d", len(merged))
	}
	if merged[0].Field("name") != "second" {
		t.Errorf("expected last occurrence to win, got %q", merged[0].Field("name"))
	}
}

func TestMergeScenarioNewRecord(t *testing.T) {
	// local=[{X,v1}], remote=[] => merged=[{X,v1}], no conflicts
	merger := NewMerger(PolicyVersioned, testLogger())

	merged, conflicts := merger.Merge(Snapshot{rec("X", 1)}, Snapshot{})

	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %d", len(conflicts))
	}
	if len(merged) != 1 || merged[0].ID != "X" || merged[0].Version != 1 {
		t.Errorf("merged = %+v, want [{X v1}]", merged)
	}
}

func TestMergeScenarioSupersededRecord(t *testing.T) {
	// local=[{X,v2,old}], remote=[{X,v3,new}] => merged keeps remote, 1 conflict
	merger := NewMerger(PolicyVersioned, testLogger())

	now := time.Now()
	local := recWith("X", 2, "name", "old")
	local.UpdatedAt = &now
	remote := recWith("X", 3, "name", "new")

	merged, conflicts := merger.Merge(Snapshot{local}, Snapshot{remote})

	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	if len(merged) != 1 || merged[0].Version != 3 || merged[0].Field("name") != "new" {
		t.Errorf("merged = %+v, want the remote v3 record", merged)
	}
}
