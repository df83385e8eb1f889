package mocks

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdonaldj/updater/internal/ports"
)

func TestMockFileSystemForwards(t *testing.T) {
	mockFS := NewMockFileSystem()
	path := filepath.Join(t.TempDir(), "file.txt")

	f, err := mockFS.Create(path, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	info, err := mockFS.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 5, info.Size())
	assert.True(t, mockFS.Called("Create", path), "Create call should be recorded")
}

func TestMockFileSystemErrorInjection(t *testing.T) {
	mockFS := NewMockFileSystem()
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	injected := errors.New("injected error")
	mockFS.Fail("Rename", path, injected)

	assert.ErrorIs(t, mockFS.Rename(path, path+".del"), injected)
	assert.FileExists(t, path, "failed Rename must not touch the file")

	// Other operations on the same path still pass through
	_, err := mockFS.Lstat(path)
	assert.NoError(t, err)
}

func TestMockFileSystemAfterRename(t *testing.T) {
	mockFS := NewMockFileSystem()
	path := filepath.Join(t.TempDir(), "a")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	var got string
	mockFS.AfterRename = func(_, newpath string) { got = newpath }

	require.NoError(t, mockFS.Rename(path, path+"b"))
	assert.Equal(t, path+"b", got)
}

func TestMockArchiver(t *testing.T) {
	archiver := NewMockArchiver()
	archiver.Add("/u.zip",
		MockEntry{Path: "dir/"},
		MockEntry{Path: "dir/a.txt", Content: "alpha", Perm: 0o600},
	)

	var names []string
	err := archiver.Walk("/u.zip", func(e ports.ArchiveEntry) error {
		names = append(names, e.Name())
		if e.IsDir() {
			return nil
		}
		rc, err := e.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		assert.Equal(t, "alpha", string(b))
		assert.Equal(t, os.FileMode(0o600), e.Mode().Perm())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/", "dir/a.txt"}, names)

	// Unknown archive
	err = archiver.Walk("/missing.zip", func(ports.ArchiveEntry) error { return nil })
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMockEntryReadErr(t *testing.T) {
	e := MockEntry{Path: "a", Content: "abc", ReadErr: ErrMockRead}
	rc, err := e.Open()
	require.NoError(t, err)
	_, err = io.ReadAll(rc)
	assert.ErrorIs(t, err, ErrMockRead)
}

func TestMockLauncher(t *testing.T) {
	launcher := NewMockLauncher()
	launcher.Errors["/bin/fail"] = errors.New("no such program")

	assert.NoError(t, launcher.Start(&exec.Cmd{Path: "/bin/ok"}))
	assert.Error(t, launcher.Start(&exec.Cmd{Path: "/bin/fail"}))
	assert.Len(t, launcher.Started, 2)
}

func TestMockElevator(t *testing.T) {
	elev := &MockElevator{Elevated: true}
	assert.True(t, elev.IsElevated())

	cmd := &exec.Cmd{Path: "/bin/x"}
	got, err := elev.Elevate(cmd)
	require.NoError(t, err)
	assert.Same(t, cmd, got)

	elev.ElevateErr = errors.New("denied")
	_, err = elev.Elevate(cmd)
	assert.Error(t, err)
	assert.Equal(t, 2, elev.ElevateCalls)
}
