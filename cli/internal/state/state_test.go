package state

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_missingFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", stateFilename)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(NewDocument(), got); diff != "" {
		t.Errorf("Load(missing) mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Dir(path)); !os.IsNotExist(err) {
		t.Errorf("Load must not create the state directory, stat err = %v", err)
	}
}

func TestLoad_invalidJSON(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name string
		body string
	}{
		{"syntax", `{invalid`},
		{"null", `null`},
		{"array", `[]`},
		{"string", `"state"`},
		{"negativeEvents", `{"pending":{"events":-5}}`},
		{"negativeEstimate", `{"pending":{"lines_touched_est":-9}}`},
		{"negativeGitLines", `{"pending":{"lines_touched_git":-1}}`},
		{"duplicateFiles", `{"pending":{"files":["a","a","b"]}}`},
		{"duplicateModules", `{"pending":{"modules":["src","src"]}}`},
		{"eventsNotNumber", `{"pending":{"events":"3"}}`},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), stateFilename)
			if err := os.WriteFile(path, []byte(tc.body), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatalf("Load(%s): expected error", tc.body)
			}
			if err.Error() != "State file is invalid or corrupted." {
				t.Errorf("Load(%s) error = %q", tc.body, err)
			}
			data, _ := os.ReadFile(path)
			if string(data) != tc.body {
				t.Errorf("Load must not rewrite a corrupt file, got %q", data)
			}
		})
	}
}

func TestLoad_emptyFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), stateFilename)
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load: expected error for empty file")
	}
}

func TestSaveLoad_defaultRoundtrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), stateFilename)
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Save(path, &doc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("roundtrip mismatch (-want +got):\n%s", diff)
	}
	if err := Save(path, &got); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, _ := os.ReadFile(path)
	if string(first) != string(second) {
		t.Errorf("second save differs:\n%s\nvs\n%s", first, second)
	}
}

func TestSave_writesEveryField(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), stateFilename)
	doc := NewDocument()
	if err := Save(path, &doc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := `{
  "pending": {
    "events": 0,
    "files": [],
    "modules": [],
    "lines_touched_est": 0,
    "lines_touched_git": null,
    "flags": {
      "plan_docs": false,
      "risk_files": false
    }
  },
  "meta": {
    "last_review_at": null
  }
}
`
	if string(data) != want {
		t.Errorf("Save output:\n%s\nwant:\n%s", data, want)
	}
}

func TestSaveLoad_populatedRoundtrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), stateFilename)
	at := time.Date(2026, 1, 22, 10, 30, 0, 0, time.UTC)
	doc := NewDocument()
	doc.Pending.Events = 5
	doc.Pending.Files.Add("src/a.py")
	doc.Pending.Files.Add("src/b.py")
	doc.Pending.Modules.Add("src/a.py")
	doc.Pending.LinesTouchedEst = 42
	doc.Pending.SetGitLines(17)
	doc.Pending.Flags.MarkRiskFiles()
	doc.Meta.LastReviewAt = &at
	if err := Save(path, &doc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("roundtrip mismatch (-want +got):\n%s", diff)
	}
	if !got.Pending.Flags.RiskFiles() || got.Pending.Flags.PlanDocs() {
		t.Errorf("flags = %+v", got.Pending.Flags)
	}
}

func TestLoad_nullAndAbsentSets(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), stateFilename)
	raw := `{"pending":{"events":2,"files":["a","b"],"modules":null,"lines_touched_est":3},"meta":{}}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(OrderedSet{"a", "b"}, got.Pending.Files); diff != "" {
		t.Errorf("Files (-want +got):\n%s", diff)
	}
	if got.Pending.Modules == nil || len(got.Pending.Modules) != 0 {
		t.Errorf("Modules = %#v, want empty non-nil", got.Pending.Modules)
	}
	if got.Pending.LinesTouchedGit != nil {
		t.Errorf("LinesTouchedGit = %v, want nil", *got.Pending.LinesTouchedGit)
	}

	if err := os.WriteFile(path, []byte(`{"pending":{"events":1}}`), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = Load(path)
	if err != nil {
		t.Fatalf("Load(absent sets): %v", err)
	}
	if got.Pending.Files == nil || got.Pending.Modules == nil {
		t.Errorf("absent sets = %#v / %#v, want empty non-nil", got.Pending.Files, got.Pending.Modules)
	}
}

func TestSave_nilDocument(t *testing.T) {
	t.Parallel()
	if err := Save(filepath.Join(t.TempDir(), stateFilename), nil); err == nil {
		t.Fatal("Save(nil): expected error")
	}
}

func TestSave_createsParentDirs(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "a", "b", stateFilename)
	doc := NewDocument()
	if err := Save(path, &doc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("state file not created: %v", err)
	}
}

func TestSave_leavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, stateFilename)
	doc := NewDocument()
	for i := 0; i < 3; i++ {
		doc.Pending.Events = i
		if err := Save(path, &doc); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestSave_mkdirAllFails(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	readOnly := filepath.Join(dir, "readonly")
	if err := os.MkdirAll(readOnly, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(readOnly, 0); err != nil {
		t.Skip("chmod 0 not supported or not permitted")
	}
	defer os.Chmod(readOnly, 0700)
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	doc := NewDocument()
	if err := Save(filepath.Join(readOnly, "sub", stateFilename), &doc); err == nil {
		t.Fatal("Save: expected error when state dir cannot be created")
	}
}

func TestMarkReviewed_resetsPending(t *testing.T) {
	t.Parallel()
	doc := NewDocument()
	doc.Pending.Events = 9
	doc.Pending.Files.Add("x")
	doc.Pending.SetGitLines(120)
	doc.Pending.Flags.MarkPlanDocs()
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.FixedZone("X", 3600))
	doc.MarkReviewed(at)
	if !doc.Pending.IsZero() {
		t.Errorf("Pending after MarkReviewed = %+v, want zero", doc.Pending)
	}
	if diff := cmp.Diff(NewPendingWork(), doc.Pending); diff != "" {
		t.Errorf("Pending (-want +got):\n%s", diff)
	}
	if doc.Meta.LastReviewAt == nil || !doc.Meta.LastReviewAt.Equal(at) {
		t.Errorf("LastReviewAt = %v, want %v", doc.Meta.LastReviewAt, at)
	}
}

func TestDiscardPending_keepsLastReview(t *testing.T) {
	t.Parallel()
	doc := NewDocument()
	if doc.DiscardPending() {
		t.Error("DiscardPending on empty pending = true, want false")
	}
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	doc.Meta.LastReviewAt = &at
	doc.Pending.Events = 2
	doc.Pending.Flags.MarkRiskFiles()
	if !doc.DiscardPending() {
		t.Error("DiscardPending with events = false, want true")
	}
	if diff := cmp.Diff(NewPendingWork(), doc.Pending); diff != "" {
		t.Errorf("Pending (-want +got):\n%s", diff)
	}
	if doc.Meta.LastReviewAt == nil || !doc.Meta.LastReviewAt.Equal(at) {
		t.Errorf("LastReviewAt changed: %v", doc.Meta.LastReviewAt)
	}
}

func TestPendingWork_Lines(t *testing.T) {
	t.Parallel()
	p := NewPendingWork()
	p.LinesTouchedEst = 10
	if got := p.Lines(); got != 10 {
		t.Errorf("Lines() = %d, want estimate 10", got)
	}
	p.SetGitLines(100)
	if got := p.Lines(); got != 100 {
		t.Errorf("Lines() = %d, want git 100", got)
	}
	p.SetGitLines(-4)
	if got := p.Lines(); got != 0 {
		t.Errorf("Lines() = %d, want clamp to 0", got)
	}
}

func TestFlags_setOnly(t *testing.T) {
	t.Parallel()
	var f Flags
	if f.PlanDocs() || f.RiskFiles() {
		t.Fatal("zero Flags must be false")
	}
	f.MarkPlanDocs()
	f.MarkPlanDocs()
	if !f.PlanDocs() || f.RiskFiles() {
		t.Errorf("after MarkPlanDocs: %+v", f)
	}
	f.MarkRiskFiles()
	if !f.PlanDocs() || !f.RiskFiles() {
		t.Errorf("after MarkRiskFiles: %+v", f)
	}
}

func TestOrderedSet_Add(t *testing.T) {
	t.Parallel()
	var s OrderedSet
	if !s.Add("b") || !s.Add("a") {
		t.Fatal("Add of new values must return true")
	}
	if s.Add("b") {
		t.Error("Add of existing value must return false")
	}
	if diff := cmp.Diff(OrderedSet{"b", "a"}, s); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
}

func TestUpdate_savesOnlyWhenChanged(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), stateFilename)
	err := Update(path, func(d *Document) (bool, error) { return false, nil })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("unchanged Update must not create state file, stat err = %v", err)
	}
	err = Update(path, func(d *Document) (bool, error) {
		d.Pending.Events++
		return true, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Pending.Events != 1 {
		t.Errorf("Events = %d, want 1", got.Pending.Events)
	}
}

func TestUpdate_propagatesError(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), stateFilename)
	boom := errors.New("boom")
	err := Update(path, func(d *Document) (bool, error) {
		d.Pending.Events = 3
		return true, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update err = %v, want boom", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("failed Update must not save")
	}
}

func TestAcquireLock_releaseThenReacquire(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), stateFilename)
	release, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	release()
	release2, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("AcquireLock after release: %v", err)
	}
	release2()
}

func TestTryReviewLock_heldReturnsErrLocked(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), stateFilename)
	release, err := TryReviewLock(path)
	if err != nil {
		t.Fatalf("TryReviewLock: %v", err)
	}
	_, err = TryReviewLock(path)
	if !errors.Is(err, ErrLocked) {
		t.Errorf("TryReviewLock while held: got %v, want ErrLocked", err)
	}
	release()
	release2, err := TryReviewLock(path)
	if err != nil {
		t.Fatalf("TryReviewLock after release: %v", err)
	}
	release2()
}

func TestTryReviewLock_independentOfStateLock(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), stateFilename)
	release, err := TryReviewLock(path)
	if err != nil {
		t.Fatalf("TryReviewLock: %v", err)
	}
	defer release()
	err = Update(path, func(d *Document) (bool, error) {
		d.Pending.Events++
		return true, nil
	})
	if err != nil {
		t.Fatalf("Update while review lock held: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(path), reviewLockFilename)); err != nil {
		t.Errorf("review.lock not created: %v", err)
	}
}
