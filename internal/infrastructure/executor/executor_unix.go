//go:build unix

package executor

import (
	"os/exec"
	"syscall"
)

// killProcessGroup runs the command in its own process group so that
// cancellation also stops everything the shell started.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
