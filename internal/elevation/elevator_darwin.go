//go:build darwin

package elevation

import (
	"os"
	"os/exec"
	"strings"

	"github.com/mcdonaldj/updater/internal/ports"
)

// DarwinElevator elevates through an osascript administrator prompt.
type DarwinElevator struct {
	geteuid func() int
	getenv  func(string) string
}

// New returns the elevator for the running platform.
func New() *DarwinElevator {
	return &DarwinElevator{
		geteuid: os.Geteuid,
		getenv:  os.Getenv,
	}
}

// IsElevated reports whether the process runs as root.
func (e *DarwinElevator) IsElevated() bool {
	return e.geteuid() == 0
}

// Elevate runs cmd through "do shell script ... with administrator privileges".
func (e *DarwinElevator) Elevate(cmd *exec.Cmd) (*exec.Cmd, error) {
	if e.IsElevated() {
		return cmd, nil
	}

	quoted := make([]string, 0, len(cmd.Args))
	quoted = append(quoted, shellQuote(cmd.Path))
	for _, a := range cmd.Args[1:] {
		quoted = append(quoted, shellQuote(a))
	}
	script := "do shell script " + appleScriptString(strings.Join(quoted, " ")) + " with administrator privileges"

	return rewrap(cmd, "/usr/bin/osascript", "-e", script), nil
}

// Reduce runs cmd as the user that invoked sudo when known.
func (e *DarwinElevator) Reduce(cmd *exec.Cmd) *exec.Cmd {
	return reduce(cmd, e.IsElevated(), e.getenv)
}

// ForwardsStdin reports false: do shell script does not pass stdin through.
func (e *DarwinElevator) ForwardsStdin() bool { return false }

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

var _ ports.Elevator = (*DarwinElevator)(nil)
