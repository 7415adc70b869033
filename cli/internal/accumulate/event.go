// Package accumulate folds file-edit events from the assistant's hook stream
// into the pending-work record: event and file counts, module keys, an
// estimated line delta, and the sticky trigger flags.
package accumulate

import (
	"encoding/json"
	"io"

	"codexreview/cli/internal/erruser"
)

// Kind is the hook tool name of an edit event.
type Kind string

const (
	// KindReplace is a targeted old->new string replacement.
	KindReplace Kind = "Edit"
	// KindWrite writes a file's full content.
	KindWrite Kind = "Write"
)

// maxEventBytes caps how much hook input is read. Write events carry whole
// files, so this is far above a typical payload.
const maxEventBytes = 16 << 20

// Event is one edit from the hook stream. Only KindReplace and KindWrite
// with a non-empty FilePath change state.
type Event struct {
	Kind     Kind
	FilePath string
	OldText  string
	NewText  string
	Content  string
	// Cwd is the session working directory used to derive module keys.
	Cwd string
	// SessionID is carried for logging only.
	SessionID string
}

// Qualifies reports whether ev should be accumulated.
func (ev Event) Qualifies() bool {
	return (ev.Kind == KindReplace || ev.Kind == KindWrite) && ev.FilePath != ""
}

type hookPayload struct {
	SessionID     string `json:"session_id"`
	Cwd           string `json:"cwd"`
	HookEventName string `json:"hook_event_name"`
	ToolName      string `json:"tool_name"`
	ToolInput     struct {
		FilePath  string `json:"file_path"`
		OldString string `json:"old_string"`
		NewString string `json:"new_string"`
		Content   string `json:"content"`
	} `json:"tool_input"`
}

// ParseHookEvent decodes a PostToolUse hook payload. Unknown tools decode to
// an Event that does not qualify; only malformed JSON is an error.
func ParseHookEvent(r io.Reader) (Event, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxEventBytes))
	if err != nil {
		return Event{}, erruser.New("Could not read hook input.", err)
	}
	var p hookPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, erruser.New("Hook input is not valid JSON.", err)
	}
	return Event{
		Kind:      Kind(p.ToolName),
		FilePath:  p.ToolInput.FilePath,
		OldText:   p.ToolInput.OldString,
		NewText:   p.ToolInput.NewString,
		Content:   p.ToolInput.Content,
		Cwd:       p.Cwd,
		SessionID: p.SessionID,
	}, nil
}
