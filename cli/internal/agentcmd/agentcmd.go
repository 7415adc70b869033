// Package agentcmd resolves the argv of the external review agent.
//
// Priority:
//  1. CODEXREVIEW_AGENT_CMD, as a JSON array of strings or a shell-quoted string
//  2. agent_cmd from config, same syntax
//  3. the packaged binary <root>/codeagent/codeagent-wrapper-<os>-<arch>[.exe]
//  4. "codeagent" resolved through PATH by the runner
package agentcmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/shlex"

	"codexreview/cli/internal/erruser"
)

// EnvAgentCmd overrides every other source.
const EnvAgentCmd = "CODEXREVIEW_AGENT_CMD"

// DefaultCommand is used when nothing else resolves.
const DefaultCommand = "codeagent"

const packagedDir = "codeagent"

// Options are the inputs to Resolve. Empty GOOS/GOARCH use the running platform.
type Options struct {
	ProjectRoot    string
	Env            []string
	ConfigOverride string
	GOOS           string
	GOARCH         string
}

// Resolve returns the agent argv. Only a malformed override is an error.
func Resolve(opts Options) ([]string, error) {
	env := opts.Env
	if env == nil {
		env = os.Environ()
	}
	if v := lookupEnv(env, EnvAgentCmd); strings.TrimSpace(v) != "" {
		argv, err := ParseOverride(v)
		if err != nil {
			return nil, erruser.New(EnvAgentCmd+" is not a valid command.", err)
		}
		return argv, nil
	}
	if strings.TrimSpace(opts.ConfigOverride) != "" {
		argv, err := ParseOverride(opts.ConfigOverride)
		if err != nil {
			return nil, erruser.New("Configuration agent_cmd is not a valid command.", err)
		}
		return argv, nil
	}
	goos, goarch := opts.GOOS, opts.GOARCH
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	if p, ok := PackagedBinary(opts.ProjectRoot, goos, goarch); ok {
		ensureExecutable(p)
		return []string{p}, nil
	}
	return []string{DefaultCommand}, nil
}

// ParseOverride parses an override value. A value starting with "[" that
// decodes to a non-empty list of strings is used as-is (this sidesteps
// quoting of Windows paths with spaces); anything else is split like a shell
// command line.
func ParseOverride(s string) ([]string, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "[") {
		var argv []string
		if err := json.Unmarshal([]byte(trimmed), &argv); err == nil && len(argv) > 0 && argv[0] != "" {
			return argv, nil
		}
	}
	argv, err := shlex.Split(s)
	if err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, erruser.New("empty command", nil)
	}
	return argv, nil
}

// NormalizeArch maps machine names to Go-style arch names.
func NormalizeArch(machine string) string {
	m := strings.ToLower(machine)
	switch m {
	case "x86_64", "amd64":
		return "amd64"
	case "arm64", "aarch64":
		return "arm64"
	}
	return m
}

// AssetName is the packaged binary file name for a platform.
func AssetName(goos, arch string) string {
	name := "codeagent-wrapper-" + goos + "-" + NormalizeArch(arch)
	if goos == "windows" {
		name += ".exe"
	}
	return name
}

// PackagedBinary returns the packaged agent path under root if it exists.
func PackagedBinary(root, goos, arch string) (string, bool) {
	if root == "" {
		return "", false
	}
	p := filepath.Join(root, packagedDir, AssetName(goos, arch))
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", false
	}
	return p, true
}

// ensureExecutable adds exec bits on unix, best effort. Archive extraction
// often drops them.
func ensureExecutable(p string) {
	if strings.HasSuffix(strings.ToLower(p), ".exe") {
		return
	}
	info, err := os.Stat(p)
	if err != nil {
		return
	}
	if mode := info.Mode().Perm(); mode&0111 != 0111 {
		_ = os.Chmod(p, mode|0111)
	}
}

func lookupEnv(env []string, key string) string {
	val := ""
	for _, e := range env {
		idx := strings.Index(e, "=")
		if idx <= 0 {
			continue
		}
		if e[:idx] == key {
			val = e[idx+1:]
		}
	}
	return val
}
