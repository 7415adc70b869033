package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"codexreview/cli/internal/accumulate"
	"codexreview/cli/internal/history"
	"codexreview/cli/internal/triggers"
)

// maxStopPayload caps stdin read by the stop hook. The payload carries only
// session metadata.
const maxStopPayload = 1 << 20

func newHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Hook handlers invoked by the coding assistant",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "post-tool-use",
		Short: "Record one edit event read from stdin",
		Args:  cobra.NoArgs,
		RunE:  runHookPostToolUse,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Decide whether pending work needs review and run the agent if so",
		Args:  cobra.NoArgs,
		RunE:  runHookStop,
	})
	return cmd
}

func runHookPostToolUse(cmd *cobra.Command, args []string) error {
	ev, err := accumulate.ParseHookEvent(cmd.InOrStdin())
	if err != nil {
		return err
	}
	e, err := newEnv(cmd, ev.Cwd)
	if err != nil {
		return err
	}
	defer e.close()
	log := e.log.With("session_id", ev.SessionID, "tool", string(ev.Kind))
	if !ev.Qualifies() {
		log.Debug("event ignored", "file", ev.FilePath)
		return nil
	}
	rules, err := triggers.LoadRules(e.stateDir)
	if err != nil {
		return err
	}
	opts := accumulate.Options{WriteCap: e.cfg.WriteCap, Rules: rules}
	e.tr.Section("Accumulate")
	e.tr.KV(map[string]any{"kind": ev.Kind, "file": ev.FilePath, "cwd": ev.Cwd, "write_cap": opts.WriteCap})
	changed, err := accumulate.Record(context.Background(), e.statePath, ev, opts)
	if err != nil {
		log.Error("record event failed", "file", ev.FilePath, "err", err)
		return err
	}
	log.Debug("event recorded", "file", ev.FilePath, "changed", changed)
	return nil
}

// stopPayload is the subset of the Stop hook input that is used.
type stopPayload struct {
	SessionID string `json:"session_id"`
	Cwd       string `json:"cwd"`
}

// readStopPayload decodes the optional Stop hook input. Empty or malformed
// input yields the zero payload.
func readStopPayload(r io.Reader) stopPayload {
	var p stopPayload
	if r == nil {
		return p
	}
	data, err := io.ReadAll(io.LimitReader(r, maxStopPayload))
	if err != nil || len(data) == 0 {
		return p
	}
	_ = json.Unmarshal(data, &p)
	return p
}

// runHookStop never fails the assistant's stop for an agent problem: start
// failures and non-zero exits are logged and recorded in history. Only an
// unreadable state file or config is reported as an error.
func runHookStop(cmd *cobra.Command, args []string) error {
	p := readStopPayload(cmd.InOrStdin())
	e, err := newEnv(cmd, p.Cwd)
	if err != nil {
		return err
	}
	defer e.close()
	e.log = e.log.With("session_id", p.SessionID)
	out, err := e.review(context.Background(), reviewRequest{
		Trigger: history.TriggerStop,
		Stdout:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	if out.Err != nil || (out.Ran && !out.Success) {
		cmd.PrintErrf("codexreview: review agent failed (%s); pending work kept for the next attempt.\n", out.describe())
	}
	return nil
}
