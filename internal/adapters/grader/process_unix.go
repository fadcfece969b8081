//go:build unix

package grader

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup starts the grader as the leader of its own process group
// so cancellation also kills the programs it spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
}
