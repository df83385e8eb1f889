//go:build windows

package elevation

import (
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/mcdonaldj/updater/internal/ports"
)

// WindowsElevator elevates through a UAC prompt raised by PowerShell.
type WindowsElevator struct{}

// New returns the elevator for the running platform.
func New() *WindowsElevator {
	return &WindowsElevator{}
}

// IsElevated reports whether the process token is elevated.
func (e *WindowsElevator) IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

// Elevate runs cmd through Start-Process -Verb RunAs and waits for it, passing
// its exit code through.
func (e *WindowsElevator) Elevate(cmd *exec.Cmd) (*exec.Cmd, error) {
	if e.IsElevated() {
		return cmd, nil
	}

	escaped := make([]string, 0, len(cmd.Args))
	for _, a := range cmd.Args[1:] {
		escaped = append(escaped, syscall.EscapeArg(a))
	}

	script := "$p = Start-Process -FilePath " + psQuote(cmd.Path)
	if len(escaped) > 0 {
		script += " -ArgumentList " + psQuote(strings.Join(escaped, " "))
	}
	if cmd.Dir != "" {
		script += " -WorkingDirectory " + psQuote(cmd.Dir)
	}
	script += " -Verb RunAs -Wait -PassThru -WindowStyle Hidden; exit $p.ExitCode"

	return rewrap(cmd, "powershell.exe", "-NoProfile", "-NonInteractive", "-Command", script), nil
}

// Reduce returns cmd unchanged. Windows offers no way to start a process with a
// lower token than the caller's without the desktop shell's token, so a
// non-elevated launch from an elevated updater inherits administrator rights.
// Run the updater unelevated and let it elevate only the update to avoid this.
func (e *WindowsElevator) Reduce(cmd *exec.Cmd) *exec.Cmd { return cmd }

// ForwardsStdin reports false: RunAs starts a detached console.
func (e *WindowsElevator) ForwardsStdin() bool { return false }

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var _ ports.Elevator = (*WindowsElevator)(nil)
