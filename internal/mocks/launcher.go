package mocks

import (
	"os/exec"
	"sync"

	"github.com/mcdonaldj/updater/internal/ports"
)

// MockLauncher implements ports.ProcessLauncher for testing.
type MockLauncher struct {
	// Started records commands passed to Start
	Started []*exec.Cmd
	// Errors maps program paths (cmd.Path) to errors
	Errors map[string]error

	mu sync.Mutex
}

// NewMockLauncher creates a new mock launcher.
func NewMockLauncher() *MockLauncher {
	return &MockLauncher{Errors: make(map[string]error)}
}

// Start records cmd without running it.
func (m *MockLauncher) Start(cmd *exec.Cmd) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Started = append(m.Started, cmd)
	if err, ok := m.Errors[cmd.Path]; ok {
		return err
	}
	return nil
}

// MockElevator implements ports.Elevator for testing.
type MockElevator struct {
	// Elevated is returned by IsElevated
	Elevated bool
	// Stdin is returned by ForwardsStdin
	Stdin bool
	// ElevateErr fails Elevate when set
	ElevateErr error
	// ElevateCalls and ReduceCalls count invocations
	ElevateCalls int
	ReduceCalls  int
	// Wrap, when set, builds the elevated command; otherwise cmd is returned as-is
	Wrap func(cmd *exec.Cmd) *exec.Cmd
}

// IsElevated reports the configured elevation state.
func (m *MockElevator) IsElevated() bool { return m.Elevated }

// ForwardsStdin reports the configured stdin behaviour.
func (m *MockElevator) ForwardsStdin() bool { return m.Stdin }

// Elevate returns cmd, optionally rewritten by Wrap.
func (m *MockElevator) Elevate(cmd *exec.Cmd) (*exec.Cmd, error) {
	m.ElevateCalls++
	if m.ElevateErr != nil {
		return nil, m.ElevateErr
	}
	if m.Wrap != nil {
		return m.Wrap(cmd), nil
	}
	return cmd, nil
}

// Reduce returns cmd unchanged.
func (m *MockElevator) Reduce(cmd *exec.Cmd) *exec.Cmd {
	m.ReduceCalls++
	return cmd
}

// Compile-time checks that the mocks implement their ports.
var (
	_ ports.ProcessLauncher = (*MockLauncher)(nil)
	_ ports.Elevator        = (*MockElevator)(nil)
)
