package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codexreview/cli/internal/agentcmd"
	"codexreview/cli/internal/decide"
	"codexreview/cli/internal/erruser"
	"codexreview/cli/internal/git"
	"codexreview/cli/internal/history"
	"codexreview/cli/internal/prompt"
	"codexreview/cli/internal/runner"
	"codexreview/cli/internal/state"
)

// lastReviewFilename holds the stdout of the most recent agent run.
const lastReviewFilename = "last_review.txt"

type reviewRequest struct {
	Trigger string
	// Force runs the agent even when the decision says not to.
	Force bool
	// Stdout receives the agent's stdout; nil discards it.
	Stdout io.Writer
}

type reviewOutcome struct {
	Decision decide.Decision
	// Busy is set when another process holds the review lock; nothing ran.
	Busy     bool
	Ran      bool
	Success  bool
	Result   runner.Result
	// Err is a start or post-success state failure from the runner.
	Err error
}

func (o reviewOutcome) describe() string {
	switch {
	case !o.Result.Started && o.Err != nil:
		if d := erruser.Details(o.Err); d != "" {
			return o.Err.Error() + " " + d
		}
		return o.Err.Error()
	case o.Result.TimedOut:
		return "timed out after " + o.Result.Duration.Round(time.Second).String()
	case o.Result.Success && o.Err != nil:
		return "review succeeded but state could not be reset: " + o.Err.Error()
	}
	return fmt.Sprintf("exit %d", o.Result.ExitCode)
}

// gitLines returns the numstat line total for the repository, if enabled and
// available. Failures are logged and ignored; the estimate is used instead.
func (e *env) gitLines() (int, bool) {
	if !e.cfg.UseGitNumstat || !git.IsInsideWorkTree(e.root) {
		return 0, false
	}
	n, err := git.NumstatLines(e.root)
	if err != nil {
		e.log.Warn("git numstat failed", "err", err)
		return 0, false
	}
	e.tr.Section("Numstat")
	e.tr.Printf("lines_touched_git=%d\n", n)
	return n, true
}

// refreshGitLines stores the numstat total into pending work. Nothing is
// written when nothing is pending or the value is unchanged.
func (e *env) refreshGitLines() error {
	n, ok := e.gitLines()
	if !ok {
		return nil
	}
	return state.Update(e.statePath, func(d *state.Document) (bool, error) {
		if d.Pending.IsZero() {
			return false, nil
		}
		if cur := d.Pending.LinesTouchedGit; cur != nil && *cur == n {
			return false, nil
		}
		d.Pending.SetGitLines(n)
		return true, nil
	})
}

func (e *env) traceDecision(d decide.Decision) {
	e.tr.Section("Decide")
	e.tr.KV(map[string]any{
		"run":     d.Run,
		"reason":  d.Reason,
		"score":   d.Score,
		"events":  d.Metrics.Events,
		"files":   d.Metrics.Files,
		"modules": d.Metrics.Modules,
		"lines":   d.Metrics.LinesTouchedEst,
	})
}

// review refreshes git lines, decides, and runs the agent when the decision
// (or req.Force) says so. Only one review runs per state directory at a time;
// a concurrent call returns with Busy set. The returned error covers state,
// config, and prompt problems only; agent failures are reported in the
// outcome.
func (e *env) review(ctx context.Context, req reviewRequest) (reviewOutcome, error) {
	if err := e.refreshGitLines(); err != nil {
		return reviewOutcome{}, err
	}
	doc, err := state.Load(e.statePath)
	if err != nil {
		return reviewOutcome{}, err
	}
	out := reviewOutcome{Decision: decide.Decide(doc.Pending)}
	d := out.Decision
	e.traceDecision(d)
	if !d.Run && !req.Force {
		e.log.Info("review skipped", "reason", d.Reason, "score", d.Score)
		return out, nil
	}

	release, err := state.TryReviewLock(e.statePath)
	if errors.Is(err, state.ErrLocked) {
		e.log.Info("review already running", "reason", d.Reason, "score", d.Score)
		e.tr.Printf("review lock held by another process; skipped\n")
		out.Busy = true
		return out, nil
	}
	if err != nil {
		return out, erruser.New("Could not take the review lock.", err)
	}
	defer release()

	argv, err := agentcmd.Resolve(agentcmd.Options{ProjectRoot: e.root, ConfigOverride: e.cfg.AgentCmd})
	if err != nil {
		return out, err
	}
	text, err := prompt.Build(e.stateDir, doc, d)
	if err != nil {
		return out, err
	}
	e.tr.Section("Agent")
	e.tr.Printf("argv=%q\n", argv)
	e.tr.Printf("prompt:\n%s", text)

	e.log.Info("review started", "reason", d.Reason, "score", d.Score, "forced", req.Force && !d.Run, "agent", argv[0])
	res, runErr := runner.Run(ctx, runner.Options{
		StatePath: e.statePath,
		WorkDir:   e.root,
		Command:   argv,
		Prompt:    text,
		Timeout:   e.cfg.Timeout,
	})
	out.Result = res
	out.Err = runErr
	out.Ran = res.Started
	out.Success = res.Success && runErr == nil

	e.tr.Printf("exit_code=%d success=%t duration=%s\n", res.ExitCode, res.Success, res.Duration)
	if res.Stderr != "" {
		e.tr.Printf("agent stderr:\n%s\n", strings.TrimRight(res.Stderr, "\n"))
	}
	if res.Stdout != "" {
		if req.Stdout != nil {
			fmt.Fprint(req.Stdout, res.Stdout)
		}
		if err := os.WriteFile(filepath.Join(e.stateDir, lastReviewFilename), []byte(res.Stdout), 0644); err != nil {
			e.log.Warn("save review output failed", "err", err)
		}
	}

	rec := history.Record{
		At:         time.Now().UTC(),
		Trigger:    req.Trigger,
		Reason:     d.Reason,
		Score:      d.Score,
		Metrics:    d.Metrics,
		Forced:     req.Force && !d.Run,
		Agent:      argv,
		ExitCode:   res.ExitCode,
		Success:    out.Success,
		TimedOut:   res.TimedOut,
		DurationMs: res.Duration.Milliseconds(),
	}
	if runErr != nil {
		rec.Error = out.describe()
	}
	if err := history.Append(e.stateDir, rec, e.cfg.HistoryMaxRecords); err != nil {
		e.log.Warn("append history failed", "err", err)
	}

	switch {
	case out.Success:
		e.log.Info("review succeeded", "duration_ms", rec.DurationMs)
	case runErr != nil:
		e.log.Error("review agent error", "err", runErr, "agent", argv)
	default:
		e.log.Warn("review failed", "exit_code", res.ExitCode, "timed_out", res.TimedOut, "duration_ms", rec.DurationMs)
	}
	return out, nil
}
