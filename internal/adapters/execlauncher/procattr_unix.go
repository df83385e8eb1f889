//go:build !windows

package execlauncher

import (
	"os/exec"
	"syscall"
)

// detach runs cmd in a new session, keeping any credential already set.
func detach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true
}
