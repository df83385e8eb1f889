package mocks

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/mcdonaldj/updater/internal/ports"
)

// MockArchiver implements ports.Archiver for testing.
type MockArchiver struct {
	// Entries holds archive contents in walk order, keyed by archive path
	Entries map[string][]MockEntry
	// WalkCalls records archive paths passed to Walk
	WalkCalls []string
	// Errors maps archive paths to errors returned by Walk before any entry
	Errors map[string]error
}

// MockEntry is an in-memory archive entry.
type MockEntry struct {
	Path    string
	Content string
	Perm    os.FileMode
	// ReadErr is returned by the entry reader after Content is consumed
	ReadErr error
}

// NewMockArchiver creates a new mock archiver.
func NewMockArchiver() *MockArchiver {
	return &MockArchiver{
		Entries: make(map[string][]MockEntry),
		Errors:  make(map[string]error),
	}
}

// Add appends entries to the archive at path.
func (m *MockArchiver) Add(path string, entries ...MockEntry) {
	m.Entries[path] = append(m.Entries[path], entries...)
}

// Walk calls fn for every entry registered for path.
func (m *MockArchiver) Walk(path string, fn func(entry ports.ArchiveEntry) error) error {
	m.WalkCalls = append(m.WalkCalls, path)
	if err, ok := m.Errors[path]; ok {
		return err
	}
	entries, ok := m.Entries[path]
	if !ok {
		return os.ErrNotExist
	}
	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the entry path.
func (e MockEntry) Name() string { return e.Path }

// IsDir reports whether the entry path ends with a slash.
func (e MockEntry) IsDir() bool { return strings.HasSuffix(e.Path, "/") }

// Mode returns the entry permissions.
func (e MockEntry) Mode() os.FileMode {
	if e.IsDir() {
		return os.ModeDir | 0o755
	}
	return e.Perm
}

// Size returns the content length.
func (e MockEntry) Size() uint64 { return uint64(len(e.Content)) }

// Open returns a reader over Content followed by ReadErr.
func (e MockEntry) Open() (io.ReadCloser, error) {
	var r io.Reader = strings.NewReader(e.Content)
	if e.ReadErr != nil {
		r = io.MultiReader(r, &failingReader{err: e.ReadErr})
	}
	return io.NopCloser(r), nil
}

type failingReader struct{ err error }

func (f *failingReader) Read([]byte) (int, error) { return 0, f.err }

// ErrMockRead is a convenience read failure for MockEntry.ReadErr.
var ErrMockRead = errors.New("mock read failure")

// Compile-time check that MockArchiver implements ports.Archiver.
var _ ports.Archiver = (*MockArchiver)(nil)
