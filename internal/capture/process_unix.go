//go:build !windows

package capture

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup puts ffmpeg in its own process group so a kill also
// reaches any helpers it forked
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// terminateProcess asks the process to exit
func terminateProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	err := cmd.Process.Signal(syscall.SIGTERM)
	if err != nil && isProcessGone(err) {
		return nil
	}
	return err
}

// killProcessGroup kills a process and its children
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	// Ignore "no such process" errors as the process may have already exited
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
