//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the agent in its own process group and makes
// cancellation kill the whole group, so helpers the agent spawned do not keep
// the output pipes open past the timeout.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
}
