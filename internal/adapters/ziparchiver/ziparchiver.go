// Package ziparchiver provides an archiver adapter for zip update archives.
package ziparchiver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/mcdonaldj/updater/internal/ports"
)

// MaxDecompressSize is the maximum allowed uncompressed entry size (10GB).
// This prevents decompression bomb attacks (G110).
const MaxDecompressSize = 10 * 1024 * 1024 * 1024 // 10GB

// ErrSizeMismatch is returned while reading an entry that inflates past its declared size.
var ErrSizeMismatch = errors.New("decompressed size exceeds declared size")

// ZipArchiver implements ports.Archiver using klauspost/compress/zip.
type ZipArchiver struct{}

// New creates a new ZipArchiver adapter.
func New() *ZipArchiver {
	return &ZipArchiver{}
}

// Walk opens the zip archive at zipPath and calls fn for each entry in archive order.
func (a *ZipArchiver) Walk(zipPath string, fn func(entry ports.ArchiveEntry) error) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		// SECURITY: Block symlinks to prevent symlink attacks
		if f.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("symlinks not supported in update archives: %s", f.Name)
		}
		if err := validName(f.Name); err != nil {
			return err
		}
		if f.UncompressedSize64 > MaxDecompressSize {
			return fmt.Errorf("file too large: %s declares %d bytes, limit is %d bytes", f.Name, f.UncompressedSize64, uint64(MaxDecompressSize))
		}
		if err := fn(&zipEntry{f: f}); err != nil {
			return err
		}
	}

	return nil
}

// validName rejects entry names that could escape the extraction root.
func validName(name string) error {
	if name == "" {
		return errors.New("empty entry name")
	}
	if strings.Contains(name, `\`) {
		return fmt.Errorf("invalid file path (backslash in entry name): %s", name)
	}
	if path.IsAbs(name) || (len(name) > 1 && name[1] == ':') {
		return fmt.Errorf("invalid file path (absolute entry name): %s", name)
	}
	for _, part := range strings.Split(strings.TrimSuffix(name, "/"), "/") {
		// SECURITY: Check for ZipSlip vulnerability
		if part == ".." {
			return fmt.Errorf("invalid file path (path traversal detected): %s", name)
		}
	}
	return nil
}

// zipEntry adapts *zip.File to ports.ArchiveEntry.
type zipEntry struct {
	f *zip.File
}

func (e *zipEntry) Name() string      { return e.f.Name }
func (e *zipEntry) IsDir() bool       { return strings.HasSuffix(e.f.Name, "/") }
func (e *zipEntry) Mode() os.FileMode { return e.f.Mode() }
func (e *zipEntry) Size() uint64      { return e.f.UncompressedSize64 }

// Open returns a reader that fails once more than the declared size is produced.
func (e *zipEntry) Open() (io.ReadCloser, error) {
	rc, err := e.f.Open()
	if err != nil {
		return nil, err
	}
	declared := int64(e.f.UncompressedSize64)
	return &declaredSizeReader{
		ReadCloser: rc,
		// Add 1 byte to detect if actual size exceeds declared size
		r:    io.LimitReader(rc, declared+1),
		left: declared,
	}, nil
}

type declaredSizeReader struct {
	io.ReadCloser
	r    io.Reader
	left int64
}

func (d *declaredSizeReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	d.left -= int64(n)
	if d.left < 0 {
		return n, ErrSizeMismatch
	}
	return n, err
}

// IsFormatError reports whether err means the file is not a readable zip archive.
func IsFormatError(err error) bool {
	return errors.Is(err, zip.ErrFormat) || errors.Is(err, zip.ErrAlgorithm) || errors.Is(err, zip.ErrChecksum)
}

// Compile-time check that ZipArchiver implements ports.Archiver.
var _ ports.Archiver = (*ZipArchiver)(nil)
