// Package git provides repository discovery and diff statistics for the hook
// handlers. Uses exec git for compatibility.
package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"codexreview/cli/internal/erruser"
)

// RepoRoot returns the absolute path of the git repository root containing dir.
// Runs "git rev-parse --show-toplevel" with Dir=dir. Returns error if dir is
// not inside a git repository.
func RepoRoot(dir string) (string, error) {
	out, err := output(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", erruser.New("This directory is not inside a Git repository.", err)
	}
	return filepath.Abs(strings.TrimSpace(out))
}

// IsInsideWorkTree reports whether dir is inside a git work tree. Any git
// failure (not a repo, git missing, bare repo) reports false.
func IsInsideWorkTree(dir string) bool {
	out, err := output(dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// HasHead reports whether the repository at dir has at least one commit.
func HasHead(dir string) bool {
	_, err := output(dir, "rev-parse", "--verify", "--quiet", "HEAD")
	return err == nil
}

func output(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = minimalEnv()
	out, err := cmd.Output()
	return string(out), err
}

func minimalEnv() []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_PAGER=cat", // prevent pager; subprocess output is captured
	}
	if home := os.Getenv("HOME"); home != "" {
		env = append(env, "HOME="+home)
	} else if runtime.GOOS == "windows" {
		if profile := os.Getenv("USERPROFILE"); profile != "" {
			env = append(env, "HOME="+profile)
		}
	}
	return env
}
