// Package runner invokes the external review agent and applies the state
// transition around it: a zero exit resets pending work and stamps
// last_review_at; anything else leaves the state file untouched so the
// evidence carries over to the next attempt. Run never retries.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"codexreview/cli/internal/erruser"
	"codexreview/cli/internal/state"
)

// waitDelay bounds how long Run waits for the agent's output pipes to close
// after the agent was killed.
const waitDelay = 5 * time.Second

// Options configures one agent invocation.
type Options struct {
	// StatePath is the state file reset on success.
	StatePath string
	// WorkDir is the child's working directory.
	WorkDir string
	// Command is the agent argv; Command[0] is the executable.
	Command []string
	// Prompt is written to the child's stdin.
	Prompt string
	// Timeout bounds the child's run time; 0 means no limit beyond ctx.
	Timeout time.Duration
	// Env is appended to the current environment.
	Env []string
	// Now overrides the clock used for last_review_at (tests).
	Now func() time.Time
}

// Result describes a finished invocation. ExitCode is -1 when the child was
// killed (timeout or cancellation). Started is false when the executable
// could not be launched.
type Result struct {
	Started  bool          `json:"started"`
	Success  bool          `json:"success"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Stdout   string        `json:"-"`
	Stderr   string        `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Run executes the agent synchronously with the prompt on stdin. A non-zero
// exit is reported in Result with a nil error. An error is returned only when
// the agent could not be started or the post-success reset could not be
// saved; in the first case the state file is not touched.
func Run(ctx context.Context, opts Options) (Result, error) {
	if len(opts.Command) == 0 || strings.TrimSpace(opts.Command[0]) == "" {
		return Result{}, erruser.New("No review agent command configured.", nil)
	}
	if opts.StatePath == "" {
		return Result{}, erruser.New("No state file configured.", nil)
	}
	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.WorkDir
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)
	cmd.Stdin = strings.NewReader(opts.Prompt)
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Started:  cmd.Process != nil,
		Duration: time.Since(start),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, erruser.New("Could not start review agent.", err)
		}
		res.ExitCode = exitErr.ExitCode()
		res.TimedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
		return res, nil
	}
	res.Success = true

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	// Reload under the lock: other processes may have recorded events while
	// the agent ran. Those are cleared together with the reviewed ones.
	err = state.Update(opts.StatePath, func(d *state.Document) (bool, error) {
		d.MarkReviewed(now())
		return true, nil
	})
	return res, err
}
