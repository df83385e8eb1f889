//go:build !windows && !darwin

package elevation

import (
	"os"
	"os/exec"

	"github.com/mcdonaldj/updater/internal/errs"
	"github.com/mcdonaldj/updater/internal/ports"
)

// elevationTools are tried in order; pkexec shows a graphical prompt when a
// polkit agent runs and sudo falls back to the terminal.
var elevationTools = []string{"pkexec", "sudo"}

// UnixElevator elevates through pkexec or sudo.
type UnixElevator struct {
	lookPath func(string) (string, error)
	geteuid  func() int
	getenv   func(string) string
}

// New returns the elevator for the running platform.
func New() *UnixElevator {
	return &UnixElevator{
		lookPath: exec.LookPath,
		geteuid:  os.Geteuid,
		getenv:   os.Getenv,
	}
}

// IsElevated reports whether the process runs as root.
func (e *UnixElevator) IsElevated() bool {
	return e.geteuid() == 0
}

// Elevate wraps cmd with the first available elevation tool.
func (e *UnixElevator) Elevate(cmd *exec.Cmd) (*exec.Cmd, error) {
	if e.IsElevated() {
		return cmd, nil
	}

	for _, tool := range elevationTools {
		path, err := e.lookPath(tool)
		if err != nil {
			continue
		}
		args := []string{cmd.Path}
		if tool == "sudo" {
			args = []string{"--", cmd.Path}
		}
		args = append(args, cmd.Args[1:]...)
		return rewrap(cmd, path, args...), nil
	}

	return nil, errs.Elevation(nil, "no elevation tool found (tried %v)", elevationTools)
}

// Reduce runs cmd as the user that invoked sudo or pkexec.
func (e *UnixElevator) Reduce(cmd *exec.Cmd) *exec.Cmd {
	return reduce(cmd, e.IsElevated(), e.getenv)
}

// ForwardsStdin reports true: pkexec and sudo hand their stdin to the command.
func (e *UnixElevator) ForwardsStdin() bool { return true }

var _ ports.Elevator = (*UnixElevator)(nil)
