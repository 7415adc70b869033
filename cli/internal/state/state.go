// Package state provides the persisted pending-work document (state.json):
// the accumulated edit signal since the last successful review plus review
// metadata. Load/Save and the cross-process advisory lock live here.
//
// Save is atomic (temp file then rename) but a Load/mutate/Save cycle run by
// two processes at once can lose an update unless both hold AcquireLock.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codexreview/cli/internal/erruser"
)

// ErrLocked indicates the review lock is held by another process.
var ErrLocked = errors.New("a review is already running")

const (
	stateFilename      = "state.json"
	lockSuffix         = ".lock"
	reviewLockFilename = "review.lock"
)

// DefaultPath returns the state file location inside stateDir.
func DefaultPath(stateDir string) string {
	return filepath.Join(stateDir, stateFilename)
}

// Document is the whole persisted state file.
type Document struct {
	Pending PendingWork `json:"pending"`
	Meta    ReviewMeta  `json:"meta"`
}

// PendingWork is the edit signal accumulated since the last successful review.
// Counters and sets only grow until MarkReviewed replaces the whole value.
type PendingWork struct {
	Events          int        `json:"events"`
	Files           OrderedSet `json:"files"`
	Modules         OrderedSet `json:"modules"`
	LinesTouchedEst int        `json:"lines_touched_est"`
	// LinesTouchedGit is an authoritative line delta (git numstat); nil when unknown.
	LinesTouchedGit *int  `json:"lines_touched_git"`
	Flags           Flags `json:"flags"`
}

// ReviewMeta records review runs. LastReviewAt is nil until the first success.
type ReviewMeta struct {
	LastReviewAt *time.Time `json:"last_review_at"`
}

// NewPendingWork returns the zero pending value with empty, non-nil sets so it
// serializes as [] rather than null.
func NewPendingWork() PendingWork {
	return PendingWork{
		Files:   OrderedSet{},
		Modules: OrderedSet{},
	}
}

// NewDocument returns the document used when no state file exists.
func NewDocument() Document {
	return Document{Pending: NewPendingWork()}
}

// IsZero reports whether nothing has accumulated.
func (p PendingWork) IsZero() bool {
	return p.Events == 0 && len(p.Files) == 0 && len(p.Modules) == 0 &&
		p.LinesTouchedEst == 0 && p.LinesTouchedGit == nil &&
		!p.Flags.PlanDocs() && !p.Flags.RiskFiles()
}

// Lines returns the line delta used for scoring: the git value when known,
// otherwise the running estimate.
func (p PendingWork) Lines() int {
	if p.LinesTouchedGit != nil {
		return *p.LinesTouchedGit
	}
	return p.LinesTouchedEst
}

// SetGitLines records an authoritative line delta.
func (p *PendingWork) SetGitLines(n int) {
	if n < 0 {
		n = 0
	}
	p.LinesTouchedGit = &n
}

// MarkReviewed resets pending to its zero value and stamps the review time.
// With DiscardPending it is the only operation that clears counters, sets,
// or flags.
func (d *Document) MarkReviewed(at time.Time) {
	d.Pending = NewPendingWork()
	t := at.UTC()
	d.Meta.LastReviewAt = &t
}

// DiscardPending resets pending without recording a review. It reports
// whether anything was pending.
func (d *Document) DiscardPending() bool {
	if d.Pending.IsZero() {
		return false
	}
	d.Pending = NewPendingWork()
	return true
}

func (d *Document) normalize() {
	if d.Pending.Files == nil {
		d.Pending.Files = OrderedSet{}
	}
	if d.Pending.Modules == nil {
		d.Pending.Modules = OrderedSet{}
	}
}

func (d *Document) validate() error {
	p := d.Pending
	switch {
	case p.Events < 0:
		return fmt.Errorf("pending.events is negative (%d)", p.Events)
	case p.LinesTouchedEst < 0:
		return fmt.Errorf("pending.lines_touched_est is negative (%d)", p.LinesTouchedEst)
	case p.LinesTouchedGit != nil && *p.LinesTouchedGit < 0:
		return fmt.Errorf("pending.lines_touched_git is negative (%d)", *p.LinesTouchedGit)
	}
	return nil
}

// Load reads the document at path. A missing file yields NewDocument() and
// nil error without creating anything. Unreadable or malformed content is an
// error, including a non-object top level, negative counters, and repeated
// set entries; the file is never repaired. Absent or null sets load as empty.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDocument(), nil
		}
		return Document{}, erruser.New("Could not read state file.", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Document{}, erruser.New("State file is empty or truncated.", errors.New(path))
	}
	if data[0] != '{' {
		return Document{}, erruser.New("State file is invalid or corrupted.", errors.New("top-level value is not an object"))
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return Document{}, erruser.New("State file is invalid or corrupted.", err)
	}
	if err := d.validate(); err != nil {
		return Document{}, erruser.New("State file is invalid or corrupted.", err)
	}
	d.normalize()
	return d, nil
}

// Marshal returns the indented file representation of d.
func Marshal(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes d to path, creating parent directories as needed. The content
// goes to a unique temp file in the same directory which is then renamed onto
// path, so readers see either the previous or the new file, never a mix.
func Save(path string, d *Document) error {
	if d == nil {
		return erruser.New("Cannot save nil state.", nil)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return erruser.New("Could not create state directory.", err)
	}
	data, err := Marshal(d)
	if err != nil {
		return erruser.New("Could not save state.", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return erruser.New("Could not save state.", err)
	}
	tmpPath := f.Name()
	defer func() { _ = os.Remove(tmpPath) }()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return erruser.New("Could not save state.", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return erruser.New("Could not save state.", err)
	}
	if err := f.Close(); err != nil {
		return erruser.New("Could not save state.", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return erruser.New("Could not save state.", err)
	}
	return nil
}

// Update runs fn on the document at path under the advisory lock and saves
// the result when fn returns true. The lock makes the read-modify-write safe
// against other codexreview processes that also use Update.
func Update(path string, fn func(*Document) (bool, error)) error {
	release, err := AcquireLock(path)
	if err != nil {
		return err
	}
	defer release()
	d, err := Load(path)
	if err != nil {
		return err
	}
	changed, err := fn(&d)
	if err != nil || !changed {
		return err
	}
	return Save(path, &d)
}

func lockPath(statePath string) string {
	return statePath + lockSuffix
}

func reviewLockPath(statePath string) string {
	return filepath.Join(filepath.Dir(statePath), reviewLockFilename)
}

