// Package elevation decides when an update needs elevated privileges and runs the
// update batch in an elevated copy of the updater.
package elevation

import (
	"os"
	"os/exec"
	"sync"

	log "github.com/sirupsen/logrus"
)

// NeedsElevation reports whether path exists and the current process cannot
// write to it. A missing path never needs elevation.
func NeedsElevation(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	return !writable(path)
}

// State is a step of the update phase.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateSpawningElevated
	StateWaitingForCallback
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSpawningElevated:
		return "spawning-elevated"
	case StateWaitingForCallback:
		return "waiting-for-callback"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "not-started"
	}
}

// Tracker records and logs state transitions.
type Tracker struct {
	mu    sync.Mutex
	state State
	log   *log.Entry
}

// NewTracker returns a tracker in StateNotStarted.
func NewTracker(logger *log.Entry) *Tracker {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Tracker{log: logger}
}

// Set moves to s and logs the transition.
func (t *Tracker) Set(s State) {
	t.mu.Lock()
	prev := t.state
	t.state = s
	t.mu.Unlock()

	t.log.WithField("state", s.String()).Debugf("State: %s -> %s", prev, s)
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// rewrap builds a command running name with args that keeps the I/O and
// working directory of cmd.
func rewrap(cmd *exec.Cmd, name string, args ...string) *exec.Cmd {
	wrapped := exec.Command(name, args...)
	wrapped.Dir = cmd.Dir
	wrapped.Env = cmd.Env
	wrapped.Stdin = cmd.Stdin
	wrapped.Stdout = cmd.Stdout
	wrapped.Stderr = cmd.Stderr
	return wrapped
}
