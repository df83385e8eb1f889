// Package mocks provides mock implementations for testing.
package mocks

import (
	"io/fs"
	"os"
	"sync"

	"github.com/mcdonaldj/updater/internal/adapters/osfs"
	"github.com/mcdonaldj/updater/internal/ports"
)

// MockFileSystem implements ports.FileSystem for testing.
// Calls are forwarded to Base after error injection, so tests can exercise real
// trees under t.TempDir() and still fail a single operation on a single path.
type MockFileSystem struct {
	// Base receives every call that is not failed; defaults to the OS filesystem.
	Base ports.FileSystem
	// Errors maps "Op:path" keys (e.g. "Create:/tmp/x/a.txt.add") to errors
	Errors map[string]error
	// Calls records every call as "Op:path" in call order
	Calls []string
	// AfterRename runs after a successful Rename
	AfterRename func(oldpath, newpath string)

	mu sync.Mutex
}

// NewMockFileSystem creates a new mock filesystem backed by the OS filesystem.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		Base:   osfs.New(),
		Errors: make(map[string]error),
	}
}

// Fail makes op on path return err.
func (m *MockFileSystem) Fail(op, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[op+":"+path] = err
}

// Called reports whether op was invoked on path.
func (m *MockFileSystem) Called(op, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := op + ":" + path
	for _, c := range m.Calls {
		if c == key {
			return true
		}
	}
	return false
}

func (m *MockFileSystem) record(op, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := op + ":" + path
	m.Calls = append(m.Calls, key)
	if err, ok := m.Errors[key]; ok {
		return err
	}
	return nil
}

// Stat returns file info for the named file.
func (m *MockFileSystem) Stat(name string) (os.FileInfo, error) {
	if err := m.record("Stat", name); err != nil {
		return nil, err
	}
	return m.Base.Stat(name)
}

// Lstat returns file info without following a trailing symlink.
func (m *MockFileSystem) Lstat(name string) (os.FileInfo, error) {
	if err := m.record("Lstat", name); err != nil {
		return nil, err
	}
	return m.Base.Lstat(name)
}

// MkdirAll creates a directory along with any necessary parents.
func (m *MockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	if err := m.record("MkdirAll", path); err != nil {
		return err
	}
	return m.Base.MkdirAll(path, perm)
}

// Create creates or truncates the named file.
func (m *MockFileSystem) Create(name string, perm os.FileMode) (ports.WritableFile, error) {
	if err := m.record("Create", name); err != nil {
		return nil, err
	}
	return m.Base.Create(name, perm)
}

// Open opens the named file for reading.
func (m *MockFileSystem) Open(name string) (fs.File, error) {
	if err := m.record("Open", name); err != nil {
		return nil, err
	}
	return m.Base.Open(name)
}

// Remove removes the named file or empty directory.
func (m *MockFileSystem) Remove(name string) error {
	if err := m.record("Remove", name); err != nil {
		return err
	}
	return m.Base.Remove(name)
}

// RemoveAll removes path and any children it contains.
func (m *MockFileSystem) RemoveAll(path string) error {
	if err := m.record("RemoveAll", path); err != nil {
		return err
	}
	return m.Base.RemoveAll(path)
}

// Rename renames (moves) oldpath to newpath.
func (m *MockFileSystem) Rename(oldpath, newpath string) error {
	if err := m.record("Rename", oldpath); err != nil {
		return err
	}
	if err := m.Base.Rename(oldpath, newpath); err != nil {
		return err
	}
	if m.AfterRename != nil {
		m.AfterRename(oldpath, newpath)
	}
	return nil
}

// Walk walks the file tree rooted at root, calling fn for each file or directory.
func (m *MockFileSystem) Walk(root string, fn ports.WalkFunc) error {
	if err := m.record("Walk", root); err != nil {
		return err
	}
	return m.Base.Walk(root, fn)
}

// Compile-time check that MockFileSystem implements ports.FileSystem.
var _ ports.FileSystem = (*MockFileSystem)(nil)
