// Package triggers classifies touched files as hard review triggers: plan or
// design documents, and risk files (dependency manifests, lockfiles,
// container and CI definitions). Built-in rules always apply; a repo can add
// more through triggers.yaml in the state directory.
package triggers

import (
	"path"
	"path/filepath"
	"strings"
)

// PlanKeywords are the markdown stem substrings that mark a plan document.
var PlanKeywords = []string{"design", "spec", "requirement", "implementation", "proposal", "adr", "rfc"}

const (
	planDir      = "docs/plans/"
	workflowsDir = ".github/workflows/"
)

// Rules holds extra trigger patterns on top of the built-ins. The zero value
// applies only the built-in rules.
type Rules struct {
	// PlanKeywords are extra stem substrings for .md files.
	PlanKeywords []string `yaml:"plan_keywords"`
	// PlanDirs are extra directories (e.g. "docs/rfcs/") whose files are plan docs.
	PlanDirs []string `yaml:"plan_dirs"`
	// RiskNames are exact file names (case-insensitive), e.g. "go.sum".
	RiskNames []string `yaml:"risk_names"`
	// RiskGlobs are path.Match patterns applied to the lowercased file name.
	RiskGlobs []string `yaml:"risk_globs"`
	// RiskDirs are directories whose files are risk files, e.g. "deploy/".
	RiskDirs []string `yaml:"risk_dirs"`
}

// IsPlanDoc reports whether p is a plan or design document under the
// built-in rules.
func IsPlanDoc(p string) bool {
	return Rules{}.IsPlanDoc(p)
}

// IsRiskFile reports whether p is a risk file under the built-in rules.
func IsRiskFile(p string) bool {
	return Rules{}.IsRiskFile(p)
}

// IsPlanDoc reports whether p lies under docs/plans/ (or an extra plan dir),
// or is a .md file whose stem contains a plan keyword.
func (r Rules) IsPlanDoc(p string) bool {
	slashed := normalize(p)
	if underDir(slashed, planDir) {
		return true
	}
	for _, d := range r.PlanDirs {
		if underDir(slashed, d) {
			return true
		}
	}
	base := path.Base(slashed)
	ext := path.Ext(base)
	if strings.ToLower(ext) != ".md" {
		return false
	}
	stem := strings.ToLower(strings.TrimSuffix(base, ext))
	for _, kw := range PlanKeywords {
		if strings.Contains(stem, kw) {
			return true
		}
	}
	for _, kw := range r.PlanKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(stem, kw) {
			return true
		}
	}
	return false
}

// IsRiskFile reports whether p is package.json, a Dockerfile, any file whose
// name contains "lock", or a file under .github/workflows/, plus any extra
// names, globs, or dirs in r.
func (r Rules) IsRiskFile(p string) bool {
	slashed := normalize(p)
	base := strings.ToLower(path.Base(slashed))
	switch {
	case base == "package.json", base == "dockerfile", strings.Contains(base, "lock"):
		return true
	case underDir(slashed, workflowsDir):
		return true
	}
	for _, n := range r.RiskNames {
		if strings.EqualFold(strings.TrimSpace(n), base) {
			return true
		}
	}
	for _, g := range r.RiskGlobs {
		if ok, err := path.Match(strings.ToLower(g), base); err == nil && ok {
			return true
		}
	}
	for _, d := range r.RiskDirs {
		if underDir(slashed, d) {
			return true
		}
	}
	return false
}

func normalize(p string) string {
	return filepath.ToSlash(p)
}

// underDir reports whether slashed has dir as a run of whole path segments.
// dir is slash-separated; a missing trailing slash is added.
func underDir(slashed, dir string) bool {
	dir = strings.Trim(filepath.ToSlash(strings.TrimSpace(dir)), "/")
	if dir == "" {
		return false
	}
	return strings.Contains("/"+slashed, "/"+dir+"/")
}
