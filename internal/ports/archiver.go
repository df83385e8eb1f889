package ports

import (
	"io"
	"os"
)

// Archiver abstracts update archive reading for testability.
// Production code uses ZipArchiver adapter; tests use MockArchiver.
type Archiver interface {
	// Walk opens the archive at path and calls fn for every entry in archive order.
	// The archive is closed before Walk returns. An error returned by fn stops the
	// walk and is returned unchanged.
	Walk(path string, fn func(entry ArchiveEntry) error) error
}

// ArchiveEntry is a single entry of an update archive.
type ArchiveEntry interface {
	// Name is the slash-separated path relative to the archive root.
	// Directory entries end with "/".
	Name() string

	// IsDir reports whether the entry denotes a directory.
	IsDir() bool

	// Mode returns the permission and type bits recorded for the entry.
	Mode() os.FileMode

	// Size returns the declared uncompressed size.
	Size() uint64

	// Open returns a reader for the entry content.
	Open() (io.ReadCloser, error)
}
