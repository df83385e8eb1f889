package ports

import "os/exec"

// ProcessLauncher abstracts spawning OS processes for testability.
// Production code uses ExecLauncher adapter; tests use MockLauncher.
type ProcessLauncher interface {
	// Start starts cmd without waiting for it to finish.
	Start(cmd *exec.Cmd) error
}

// Elevator abstracts OS privilege changes for spawned commands.
// Production code uses the platform elevator in package elevation.
type Elevator interface {
	// IsElevated reports whether the current process already runs elevated.
	IsElevated() bool

	// Elevate returns a command that runs cmd with elevated privileges.
	Elevate(cmd *exec.Cmd) (*exec.Cmd, error)

	// Reduce returns a command that runs cmd as the invoking, non-elevated user
	// when the platform allows it, and cmd unchanged otherwise.
	Reduce(cmd *exec.Cmd) *exec.Cmd

	// ForwardsStdin reports whether an elevated command still reads the stdin
	// given to the wrapper.
	ForwardsStdin() bool
}
