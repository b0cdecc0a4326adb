package store

import (
	"path/filepath"
	"strings"
	"testing"

	"vulnforge/internal/types"
)

func TestAttemptStore_SaveAndLoad(t *testing.T) {
	s, err := NewAttemptStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	code := `await vault.withdraw(100);`
	id, path, err := s.Save("vault-reentrancy", 1, code)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !strings.Contains(id, "attempt1") {
		t.Errorf("storage ID should embed the attempt number: %q", id)
	}
	if !strings.HasSuffix(path, ".js") {
		t.Errorf("artifact path = %q", path)
	}

	got, err := s.Load("vault-reentrancy", id)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got != code {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestAttemptStore_IDsNeverCollide(t *testing.T) {
	s, err := NewAttemptStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		id, _, err := s.Save("t", 1, "code")
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("storage ID collision on re-run: %q", id)
		}
		seen[id] = true
	}
}

func TestAttemptStore_ListOrder(t *testing.T) {
	s, err := NewAttemptStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var want []string
	for i := 1; i <= 12; i++ {
		id, _, err := s.Save("t", i, "code")
		if err != nil {
			t.Fatal(err)
		}
		want = append(want, id)
	}

	got, err := s.List("t")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("List returned %d IDs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %q, want %q (creation order)", i, got[i], want[i])
		}
	}
}

func TestAttemptStore_SanitizesTargetID(t *testing.T) {
	s, err := NewAttemptStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id, path, err := s.Save("../../etc/passwd", 1, "code")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if strings.Contains(path, "..") {
		t.Errorf("path traversal not neutralized: %q", path)
	}
	if _, err := s.Load("../../etc/passwd", id); err != nil {
		t.Errorf("sanitized round trip failed: %v", err)
	}
}

func TestAttemptStore_ListMissingTarget(t *testing.T) {
	s, err := NewAttemptStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ids, err := s.List("never-seen")
	if err != nil {
		t.Errorf("missing target should not error: %v", err)
	}
	if ids != nil {
		t.Errorf("ids = %v", ids)
	}
}

func TestJournal_RecordAndHistory(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	recs := []CycleRecord{
		{RunID: "run1", TargetID: "vault", Attempt: 1, Tier: types.TierStandard, Fingerprint: "aa11", Outcome: "technical", ElapsedMS: 1200},
		{RunID: "run1", TargetID: "vault", Attempt: 2, Tier: types.TierStandard, Fingerprint: "bb22", Outcome: "exploit-success", ElapsedMS: 900},
		{RunID: "run1", TargetID: "other", Attempt: 1, Tier: types.TierStandard, Fingerprint: "cc33", Outcome: "secure", ElapsedMS: 400},
	}
	for _, rec := range recs {
		if err := j.Record(rec); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	history, err := j.History("vault")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Attempt != 1 || history[1].Attempt != 2 {
		t.Errorf("history out of order: %+v", history)
	}
	if history[1].Outcome != "exploit-success" || history[1].Tier != types.TierStandard {
		t.Errorf("record fields lost: %+v", history[1])
	}
}

func TestJournal_RunSummary(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	for _, outcome := range []string{"technical", "technical", "secure"} {
		if err := j.Record(CycleRecord{RunID: "r", TargetID: "t", Attempt: 1, Tier: types.TierStandard, Outcome: outcome}); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := j.RunSummary("r")
	if err != nil {
		t.Fatal(err)
	}
	if summary["technical"] != 2 || summary["secure"] != 1 {
		t.Errorf("summary = %v", summary)
	}
}
