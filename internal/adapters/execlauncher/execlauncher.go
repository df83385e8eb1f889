// Package execlauncher provides a process launcher adapter using exec.Cmd.
package execlauncher

import (
	"fmt"
	"os/exec"

	"github.com/mcdonaldj/updater/internal/ports"
)

// ExecLauncher implements ports.ProcessLauncher by starting detached processes.
type ExecLauncher struct{}

// New creates a new ExecLauncher adapter.
func New() *ExecLauncher {
	return &ExecLauncher{}
}

// Start starts cmd in its own session and releases it, so the launched
// application outlives the updater.
func (l *ExecLauncher) Start(cmd *exec.Cmd) error {
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("release %s: %w", cmd.Path, err)
	}
	return nil
}

// Compile-time check that ExecLauncher implements ports.ProcessLauncher.
var _ ports.ProcessLauncher = (*ExecLauncher)(nil)
