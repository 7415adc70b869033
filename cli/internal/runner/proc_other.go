//go:build !unix

package runner

import "os/exec"

// setProcessGroup is a no-op; WaitDelay still bounds the wait on pipes.
func setProcessGroup(cmd *exec.Cmd) {}
