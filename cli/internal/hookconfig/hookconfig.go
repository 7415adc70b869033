// Package hookconfig renders the assistant settings snippet that wires
// codexreview into an editing session (PostToolUse and Stop hooks).
package hookconfig

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/shlex"
)

// DefaultBinary is the command used when no binary path is given.
const DefaultBinary = "codexreview"

// EditMatcher limits the PostToolUse hook to the tools the accumulator counts.
const EditMatcher = "Edit|Write"

// Command is a single hook command entry.
type Command struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

// Matcher groups hook commands under an optional tool matcher.
type Matcher struct {
	Matcher string    `json:"matcher,omitempty"`
	Hooks   []Command `json:"hooks"`
}

// Settings is the top-level settings object containing the hooks map.
type Settings struct {
	Hooks map[string][]Matcher `json:"hooks"`
}

// Build returns the settings for binary. The Stop hook timeout is the agent
// timeout plus a minute of slack, in whole seconds; zero agentTimeout omits it.
func Build(binary string, agentTimeout time.Duration) Settings {
	bin := quote(strings.TrimSpace(binary))
	if bin == "" {
		bin = DefaultBinary
	}
	stop := Command{Type: "command", Command: bin + " hook stop"}
	if agentTimeout > 0 {
		stop.Timeout = int((agentTimeout + time.Minute) / time.Second)
	}
	return Settings{Hooks: map[string][]Matcher{
		"PostToolUse": {{
			Matcher: EditMatcher,
			Hooks:   []Command{{Type: "command", Command: bin + " hook post-tool-use"}},
		}},
		"Stop": {{Hooks: []Command{stop}}},
	}}
}

// JSON returns s as indented JSON with a trailing newline.
func (s Settings) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// quote wraps binary in single quotes when shell tokenization would split it.
func quote(binary string) string {
	if binary == "" {
		return ""
	}
	if parts, err := shlex.Split(binary); err == nil && len(parts) == 1 && parts[0] == binary {
		return binary
	}
	return "'" + strings.ReplaceAll(binary, "'", `'\''`) + "'"
}
