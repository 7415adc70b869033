package accumulate

import (
	"context"
	"path/filepath"
	"strings"

	"codexreview/cli/internal/state"
	"codexreview/cli/internal/triggers"
)

// DefaultWriteCap bounds the line estimate of a single full-file write.
const DefaultWriteCap = 200

// Options tune accumulation. The zero value uses DefaultWriteCap and the
// built-in trigger rules.
type Options struct {
	WriteCap int
	Rules    triggers.Rules
}

func (o Options) writeCap() int {
	if o.WriteCap <= 0 {
		return DefaultWriteCap
	}
	return o.WriteCap
}

// Apply folds ev into p and reports whether ev qualified. Non-qualifying
// events leave p untouched.
func Apply(ev Event, p *state.PendingWork, opts Options) bool {
	if !ev.Qualifies() {
		return false
	}
	p.Events++
	p.Files.Add(ev.FilePath)
	if mk := ModuleKey(ev.FilePath, ev.Cwd); mk != "" {
		p.Modules.Add(mk)
	}
	p.LinesTouchedEst += EstimateLines(ev, opts.writeCap())
	if opts.Rules.IsPlanDoc(ev.FilePath) {
		p.Flags.MarkPlanDocs()
	}
	if opts.Rules.IsRiskFile(ev.FilePath) {
		p.Flags.MarkRiskFiles()
	}
	return true
}

// Record applies ev to the state file at statePath under the state lock.
// The file is written only when ev qualifies. ctx is checked before the
// lock is taken.
func Record(ctx context.Context, statePath string, ev Event, opts Options) (bool, error) {
	if !ev.Qualifies() {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var applied bool
	err := state.Update(statePath, func(d *state.Document) (bool, error) {
		applied = Apply(ev, &d.Pending, opts)
		return applied, nil
	})
	return applied, err
}

// EstimateLines returns the line delta contributed by ev: the larger side of
// a replacement, or the capped length of a full write.
func EstimateLines(ev Event, writeCap int) int {
	switch ev.Kind {
	case KindReplace:
		return max(CountLines(ev.OldText), CountLines(ev.NewText))
	case KindWrite:
		return min(CountLines(ev.Content), writeCap)
	default:
		return 0
	}
}

// CountLines returns 0 for "" and otherwise the newline count plus one.
func CountLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// ModuleKey derives a coarse subsystem key: the first two segments of
// filePath relative to cwd, joined with "/". When filePath is not inside cwd
// the path's own segments are used. Root and volume segments are dropped.
func ModuleKey(filePath, cwd string) string {
	parts := segments(relativeTo(filePath, cwd))
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return parts[0] + "/" + parts[1]
	}
}

func relativeTo(filePath, cwd string) string {
	if cwd == "" {
		return filePath
	}
	absFile, err := filepath.Abs(resolveAgainst(filePath, cwd))
	if err != nil {
		return filePath
	}
	absCwd, err := filepath.Abs(cwd)
	if err != nil {
		return filePath
	}
	if rel, ok := relInside(absCwd, absFile); ok {
		return rel
	}
	if rel, ok := relInside(evalSymlinks(absCwd), evalSymlinks(absFile)); ok {
		return rel
	}
	return filePath
}

func relInside(base, target string) (string, bool) {
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// resolveAgainst joins a relative filePath onto cwd; absolute paths pass through.
func resolveAgainst(filePath, cwd string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return filepath.Join(cwd, filePath)
}

// evalSymlinks resolves symlinks when the path exists (e.g. /tmp on macOS)
// and returns p unchanged otherwise.
func evalSymlinks(p string) string {
	if r, err := filepath.EvalSymlinks(p); err == nil {
		return r
	}
	return p
}

func segments(p string) []string {
	p = strings.TrimPrefix(p, filepath.VolumeName(p))
	p = filepath.ToSlash(p)
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s == "" || s == "." {
			continue
		}
		out = append(out, s)
	}
	return out
}
