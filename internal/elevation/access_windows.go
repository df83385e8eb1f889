//go:build windows

package elevation

import (
	"os"
	"path/filepath"
)

// writable probes a directory by creating and removing a temporary file.
func writable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}

	f, err := os.CreateTemp(dir, ".updater-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
