// Package prompt builds the review request piped to the agent's stdin from
// the pending-work record and the decision that triggered the run.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codexreview/cli/internal/decide"
	"codexreview/cli/internal/erruser"
	"codexreview/cli/internal/state"
)

// HeaderFilename, when present in the state directory, replaces DefaultHeader.
const HeaderFilename = "review_prompt.txt"

// maxListedFiles bounds the file list; the remainder is summarized as a count.
const maxListedFiles = 200

// DefaultHeader is the instruction block placed before the change summary.
const DefaultHeader = `Review the changes made in this working tree during the current coding session.

Focus on correctness, security, and maintainability of the touched files listed below.
Inspect the files directly (for example with git diff) rather than relying on this summary alone.
Report concrete, actionable issues with file and line references. Do not suggest reverting intentional changes.`

// Header returns the prompt header. If stateDir/review_prompt.txt exists and
// is readable, its contents (trimmed) are returned; otherwise DefaultHeader.
// Missing file returns the default with nil error; any other read error is
// returned so the user can see it. A file that is empty after trimming also
// falls back to the default.
func Header(stateDir string) (string, error) {
	if stateDir == "" {
		return DefaultHeader, nil
	}
	data, err := os.ReadFile(filepath.Join(stateDir, HeaderFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultHeader, nil
		}
		return "", erruser.New("Could not read review prompt override.", err)
	}
	h := strings.TrimSpace(string(data))
	if h == "" {
		return DefaultHeader, nil
	}
	return h, nil
}

// Build loads the header from stateDir and renders the prompt.
func Build(stateDir string, doc state.Document, d decide.Decision) (string, error) {
	header, err := Header(stateDir)
	if err != nil {
		return "", err
	}
	return Render(header, doc, d), nil
}

// Render formats the prompt. Output is deterministic for a given input.
func Render(header string, doc state.Document, d decide.Decision) string {
	p := doc.Pending
	var b strings.Builder
	b.WriteString(strings.TrimSpace(header))
	b.WriteString("\n\n## Trigger\n")
	fmt.Fprintf(&b, "Reason: %s\n", Describe(d.Reason))
	fmt.Fprintf(&b, "Score: %d/%d (threshold %d)\n", d.Score, decide.MaxScore, decide.Threshold)

	b.WriteString("\n## Pending work\n")
	fmt.Fprintf(&b, "Edit events: %d\n", p.Events)
	if p.LinesTouchedGit != nil {
		fmt.Fprintf(&b, "Lines touched: %d (git diff)\n", *p.LinesTouchedGit)
	} else {
		fmt.Fprintf(&b, "Lines touched: %d (estimated)\n", p.LinesTouchedEst)
	}
	if doc.Meta.LastReviewAt != nil {
		fmt.Fprintf(&b, "Last review: %s\n", doc.Meta.LastReviewAt.UTC().Format(time.RFC3339))
	} else {
		b.WriteString("Last review: never\n")
	}

	if len(p.Modules) > 0 {
		b.WriteString("\n## Modules\n")
		for _, m := range p.Modules {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	if len(p.Files) > 0 {
		b.WriteString("\n## Files\n")
		for i, f := range p.Files {
			if i == maxListedFiles {
				fmt.Fprintf(&b, "- ... and %d more\n", len(p.Files)-maxListedFiles)
				break
			}
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}

// Describe returns a human-readable explanation of a decision reason.
func Describe(r decide.Reason) string {
	switch r {
	case decide.ReasonPlanDocs:
		return "plan or design documents were edited (plan_docs)"
	case decide.ReasonRiskFiles:
		return "dependency, build, or CI files were edited (risk_files)"
	case decide.ReasonScoreThreshold:
		return "accumulated change score reached the threshold (score_threshold_met)"
	case decide.ReasonScoreTooLow:
		return "accumulated change score is below the threshold (score_too_low)"
	}
	return string(r)
}
