package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"codexreview/cli/internal/config"
	"codexreview/cli/internal/decide"
	"codexreview/cli/internal/erruser"
	"codexreview/cli/internal/history"
	"codexreview/cli/internal/hookconfig"
	"codexreview/cli/internal/prompt"
	"codexreview/cli/internal/state"
)

func newDecideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Print the review decision for the pending work without running the agent",
		Args:  cobra.NoArgs,
		RunE:  runDecide,
	}
	cmd.Flags().Bool("json", false, "Emit the decision as JSON")
	return cmd
}

func runDecide(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, "")
	if err != nil {
		return err
	}
	defer e.close()
	doc, err := state.Load(e.statePath)
	if err != nil {
		return err
	}
	// Preview only: the git total is applied in memory, not saved.
	if n, ok := e.gitLines(); ok && !doc.Pending.IsZero() {
		doc.Pending.SetGitLines(n)
	}
	d := decide.Decide(doc.Pending)
	e.traceDecision(d)
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), d)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "run: %t\n", d.Run)
	fmt.Fprintf(w, "reason: %s\n", d.Reason)
	fmt.Fprintf(w, "score: %d/%d (threshold %d)\n", d.Score, decide.MaxScore, decide.Threshold)
	b := decide.Score(doc.Pending)
	fmt.Fprintf(w, "breakdown: events=%d files=%d modules=%d lines=%d\n", b.Events, b.Files, b.Modules, b.Lines)
	return nil
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report pending work, last review time, and review history",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	cmd.Flags().Bool("json", false, "Emit the state document as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, "")
	if err != nil {
		return err
	}
	defer e.close()
	doc, err := state.Load(e.statePath)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := state.Marshal(&doc)
		if err != nil {
			return erruser.New("Could not encode state.", err)
		}
		_, err = w.Write(data)
		return err
	}
	p := doc.Pending
	fmt.Fprintf(w, "state: %s\n", e.statePath)
	fmt.Fprintf(w, "events: %d\n", p.Events)
	fmt.Fprintf(w, "files: %d\n", len(p.Files))
	fmt.Fprintf(w, "modules: %d\n", len(p.Modules))
	fmt.Fprintf(w, "lines_touched_est: %d\n", p.LinesTouchedEst)
	if p.LinesTouchedGit != nil {
		fmt.Fprintf(w, "lines_touched_git: %d\n", *p.LinesTouchedGit)
	}
	fmt.Fprintf(w, "plan_docs: %t\n", p.Flags.PlanDocs())
	fmt.Fprintf(w, "risk_files: %t\n", p.Flags.RiskFiles())
	if doc.Meta.LastReviewAt != nil {
		fmt.Fprintf(w, "last_review_at: %s\n", doc.Meta.LastReviewAt.UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "last_review_at: never")
	}
	records, err := history.ReadRecords(e.stateDir)
	if err != nil {
		return err
	}
	s := history.Summarize(records)
	fmt.Fprintf(w, "reviews: %d (%d succeeded, %d failed)\n", s.Attempts, s.Successes, s.Failures)
	if s.Last != nil {
		outcome := "succeeded"
		if !s.Last.Success {
			outcome = fmt.Sprintf("failed (exit %d)", s.Last.ExitCode)
		}
		fmt.Fprintf(w, "last_attempt: %s %s via %s, reason %s\n",
			s.Last.At.UTC().Format(time.RFC3339), outcome, s.Last.Trigger, s.Last.Reason)
	}
	return nil
}

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Run the review agent now if the pending work warrants it",
		Long: "Run the review agent now if the pending work warrants it.\n" +
			"Exits 2 when the agent fails; pending work is kept for the next attempt.",
		Args: cobra.NoArgs,
		RunE: runReview,
	}
	cmd.Flags().Bool("force", false, "Run the agent even when the decision is not to review")
	cmd.Flags().Bool("dry-run", false, "Print the prompt that would be sent instead of running the agent")
	return cmd
}

func runReview(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, "")
	if err != nil {
		return err
	}
	defer e.close()
	force, _ := cmd.Flags().GetBool("force")
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		return printPrompt(cmd.OutOrStdout(), e)
	}
	out, err := e.review(context.Background(), reviewRequest{
		Trigger: history.TriggerReview,
		Force:   force,
		Stdout:  cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	d := out.Decision
	switch {
	case out.Busy:
		cmd.PrintErrln("A review is already running for this repository; skipped.")
		return nil
	case !out.Ran && out.Err == nil:
		cmd.PrintErrf("No review needed (%s, score %d/%d). Use --force to run anyway.\n", d.Reason, d.Score, decide.MaxScore)
		return nil
	case out.Success:
		cmd.PrintErrf("Review succeeded (%s); pending work cleared.\n", d.Reason)
		return nil
	case out.Result.Success && out.Err != nil:
		return out.Err
	}
	cmd.PrintErrf("Review agent failed (%s); pending work kept.\n", out.describe())
	return exitAgentFailed
}

func printPrompt(w io.Writer, e *env) error {
	doc, err := state.Load(e.statePath)
	if err != nil {
		return err
	}
	text, err := prompt.Build(e.stateDir, doc, decide.Decide(doc.Pending))
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)
	return err
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard pending work without running a review",
		Args:  cobra.NoArgs,
		RunE:  runReset,
	}
}

func runReset(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, "")
	if err != nil {
		return err
	}
	defer e.close()
	discarded := false
	err = state.Update(e.statePath, func(d *state.Document) (bool, error) {
		discarded = d.DiscardPending()
		return discarded, nil
	})
	if err != nil {
		return err
	}
	if discarded {
		e.log.Info("pending work discarded")
		fmt.Fprintln(cmd.OutOrStdout(), "Pending work discarded.")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing pending.")
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return erruser.New("Could not write JSON output.", err)
	}
	return nil
}

func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Print the assistant hook settings that wire codexreview into a session",
		Long: "Print a settings JSON snippet registering codexreview as a PostToolUse hook " +
			"(Edit and Write tools) and a Stop hook. Merge it into the assistant's settings file. " +
			"The Stop hook timeout outlasts --timeout (default 10m).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			binary, _ := cmd.Flags().GetString("binary")
			timeout := config.DefaultConfig().Timeout
			if cmd.Flags().Changed("timeout") {
				timeout, _ = cmd.Flags().GetDuration("timeout")
			}
			if timeout < 0 {
				return erruser.New("Timeout must not be negative.", nil)
			}
			data, err := hookconfig.Build(binary, timeout).JSON()
			if err != nil {
				return erruser.New("Could not render hook settings.", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().String("binary", hookconfig.DefaultBinary, "Command the hooks invoke")
	return cmd
}
