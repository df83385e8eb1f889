// Package transaction applies update archives to a target directory through
// suffix-marked staging, so an original path never holds partially written content.
package transaction

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/mcdonaldj/updater/internal/adapters/osfs"
	"github.com/mcdonaldj/updater/internal/adapters/ziparchiver"
	"github.com/mcdonaldj/updater/internal/errs"
	"github.com/mcdonaldj/updater/internal/ports"
)

const defaultFileMode os.FileMode = 0o644

// Service stages, commits and reverts updates with injected dependencies.
type Service struct {
	fs       ports.FileSystem
	archiver ports.Archiver
	log      *log.Entry
}

// NewService creates a new transaction service with the given dependencies.
func NewService(fs ports.FileSystem, archiver ports.Archiver, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Service{
		fs:       fs,
		archiver: archiver,
		log:      logger,
	}
}

// NewDefaultService creates a transaction service with real production dependencies.
func NewDefaultService(logger *log.Entry) *Service {
	return NewService(
		osfs.New(),
		ziparchiver.New(),
		logger,
	)
}

// Apply stages archivePath into targetDir and commits it. When staging fails the
// target is reverted to its pre-stage state and the staging error is returned.
func (s *Service) Apply(archivePath, targetDir string) error {
	logger := s.log.WithField("target", targetDir)

	logger.Debugf("Staging: %s", archivePath)
	staged, err := s.Stage(archivePath, targetDir)
	if err != nil {
		logger.Warn(err)
		logger.Warnf("Reverting: %s", targetDir)
		if revertErr := s.Revert(targetDir); revertErr != nil {
			return fmt.Errorf("%w (revert incomplete: %v)", err, revertErr)
		}
		s.removeCreatedDirs(staged)
		return err
	}

	logger.Debugf("Committing %d staged paths", len(staged))
	return s.Commit(targetDir)
}

// Stage unpacks the zip archive at archivePath over targetDir. Existing files are
// renamed to <path>.del and new content is written to <path>.add. The first failing
// entry stops staging; the entries staged so far are returned with the error so the
// caller can revert them.
func (s *Service) Stage(archivePath, targetDir string) ([]StagedEntry, error) {
	root, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, errs.Argument("target %s: %v", targetDir, err)
	}
	root = filepath.Clean(root)

	var staged []StagedEntry
	walkErr := s.archiver.Walk(archivePath, func(entry ports.ArchiveEntry) error {
		entries, err := s.stageEntry(root, entry)
		staged = append(staged, entries...)
		if err != nil {
			return err
		}
		s.log.Tracef("Staged: %s", entry.Name())
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, errs.ErrIO) || errors.Is(walkErr, errs.ErrArchive) {
			return staged, walkErr
		}
		if ziparchiver.IsFormatError(walkErr) {
			return staged, errs.Archive(walkErr, "source not a valid zip file: %s", archivePath)
		}
		return staged, errs.Archive(walkErr, "could not read %s", archivePath)
	}

	return staged, nil
}

func (s *Service) stageEntry(root string, entry ports.ArchiveEntry) ([]StagedEntry, error) {
	name := entry.Name()
	dest := filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(name, "/")))

	// SECURITY: Check for ZipSlip vulnerability
	if !isWithinDir(root, dest) {
		return nil, errs.Archive(nil, "invalid file path (path traversal detected): %s", name)
	}

	if entry.IsDir() {
		return s.mkdirAll(root, dest)
	}

	staged, err := s.mkdirAll(root, filepath.Dir(dest))
	if err != nil {
		return staged, err
	}

	if _, err := s.fs.Lstat(dest); err == nil {
		if err := s.fs.Rename(dest, dest+DelSuffix); err != nil {
			return staged, errs.IO(err, "could not rename file %s", dest)
		}
		staged = append(staged, StagedEntry{Path: dest, Marker: MarkerDel})
	} else if !errors.Is(err, fs.ErrNotExist) {
		return staged, errs.IO(err, "could not stat %s", dest)
	}

	// Record the marker before writing so a partial .add is reverted too.
	staged = append(staged, StagedEntry{Path: dest, Marker: MarkerAdd})
	return staged, s.writeEntry(entry, dest+AddSuffix)
}

func (s *Service) writeEntry(entry ports.ArchiveEntry, addPath string) error {
	rc, err := entry.Open()
	if err != nil {
		return errs.Archive(err, "could not open entry %s", entry.Name())
	}
	defer func() { _ = rc.Close() }()

	perm := entry.Mode().Perm()
	if perm == 0 {
		perm = defaultFileMode
	}

	f, err := s.fs.Create(addPath, perm)
	if err != nil {
		return errs.IO(err, "could not create %s", addPath)
	}

	src := &sourceReader{r: rc}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close() // Best effort cleanup on error path
		if src.err != nil {
			return errs.Archive(err, "could not read entry %s", entry.Name())
		}
		return errs.IO(err, "could not write %s", addPath)
	}

	// Flush to disk before the marker can be committed under its real name.
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errs.IO(err, "could not sync %s", addPath)
	}
	if err := f.Close(); err != nil {
		return errs.IO(err, "could not close %s", addPath)
	}
	return nil
}

// mkdirAll creates dir and its missing parents below root and returns the created
// directories, outermost first.
func (s *Service) mkdirAll(root, dir string) ([]StagedEntry, error) {
	var missing []string
	for p := dir; p != root && isWithinDir(root, p); p = filepath.Dir(p) {
		if _, err := s.fs.Stat(p); err == nil {
			break
		}
		missing = append(missing, p)
	}
	if len(missing) == 0 {
		return nil, nil
	}

	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.IO(err, "could not create folder %s", dir)
	}

	created := make([]StagedEntry, 0, len(missing))
	for i := len(missing) - 1; i >= 0; i-- {
		created = append(created, StagedEntry{Path: missing[i], Marker: MarkerNone})
	}
	return created, nil
}

// Commit converts every staged marker below targetDir into final state: <path>.add
// replaces <path> after a content hash check and <path>.del is removed.
func (s *Service) Commit(targetDir string) error {
	markers, err := s.collect(targetDir)
	if err != nil {
		return err
	}

	replaced := make(map[string]bool, len(markers))
	for _, m := range markers {
		if m.Marker == MarkerAdd {
			replaced[m.Path] = true
		}
	}

	for _, m := range markers {
		switch m.Marker {
		case MarkerAdd:
			if err := s.commitAdd(targetDir, m.Path); err != nil {
				return err
			}
		case MarkerDel:
			if err := s.commitDel(targetDir, m.Path, replaced[m.Path]); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Service) commitAdd(root, path string) error {
	addPath := path + AddSuffix

	staged, err := ComputeSHA256(s.fs, addPath)
	if err != nil {
		return errs.IO(err, "could not hash %s", addPath)
	}
	if err := s.fs.Rename(addPath, path); err != nil {
		return errs.IO(err, "could not commit %s", path)
	}
	committed, err := ComputeSHA256(s.fs, path)
	if err != nil {
		return errs.IO(err, "could not hash %s", path)
	}
	if committed != staged {
		return errs.Integrity("hash code mismatch committing file %s: staged %s, committed %s", path, staged, committed)
	}

	s.log.Tracef("Commit: %s", relativize(root, path))
	return nil
}

func (s *Service) commitDel(root, path string, replaced bool) error {
	delPath := path + DelSuffix
	if err := s.fs.RemoveAll(delPath); err != nil {
		return errs.IO(err, "could not remove %s", delPath)
	}
	if replaced {
		return nil
	}

	if _, err := s.fs.Lstat(path); err == nil {
		return errs.Integrity("stale path %s still present after removing %s", path, delPath)
	}
	s.log.Tracef("Remove: %s", relativize(root, path))
	return nil
}

// Revert undoes staged markers below targetDir: <path>.del is renamed back to
// <path> and <path>.add is removed. Unmarked files are left alone. Every marker is
// attempted; failures are returned together.
func (s *Service) Revert(targetDir string) error {
	markers, err := s.collect(targetDir)
	if err != nil {
		return err
	}

	var merr *multierror.Error
	for _, m := range markers {
		switch m.Marker {
		case MarkerDel:
			if err := s.fs.Rename(m.MarkerPath(), m.Path); err != nil {
				merr = multierror.Append(merr, fmt.Errorf("restore %s: %w", m.Path, err))
				continue
			}
		case MarkerAdd:
			if err := s.fs.Remove(m.MarkerPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
				merr = multierror.Append(merr, fmt.Errorf("discard %s: %w", m.MarkerPath(), err))
				continue
			}
		}
		s.log.Tracef("Revert: %s", relativize(targetDir, m.MarkerPath()))
	}

	if err := merr.ErrorOrNil(); err != nil {
		return errs.IO(err, "could not revert %s", targetDir)
	}
	return nil
}

// removeCreatedDirs removes directories created by Stage, innermost first.
// Directories that are no longer empty are kept.
func (s *Service) removeCreatedDirs(staged []StagedEntry) {
	for i := len(staged) - 1; i >= 0; i-- {
		if staged[i].Marker != MarkerNone {
			continue
		}
		if err := s.fs.Remove(staged[i].Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Debugf("keeping folder %s: %v", staged[i].Path, err)
		}
	}
}

// collect lists the markers below targetDir in walk order. Only files carry .add
// markers; a .del marker may park a whole directory, which is not descended into.
func (s *Service) collect(targetDir string) ([]StagedEntry, error) {
	root := filepath.Clean(targetDir)

	var markers []StagedEntry
	err := s.fs.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		marker, real := MarkerOf(path)
		switch {
		case marker == MarkerDel:
			markers = append(markers, StagedEntry{Path: real, Marker: MarkerDel})
			if info.IsDir() {
				return filepath.SkipDir
			}
		case marker == MarkerAdd && !info.IsDir():
			markers = append(markers, StagedEntry{Path: real, Marker: MarkerAdd})
		}
		return nil
	})
	if err != nil {
		return nil, errs.IO(err, "could not scan %s", targetDir)
	}

	return markers, nil
}

// sourceReader remembers read failures so they can be told apart from write failures.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

// isWithinDir checks if the target path is within the base directory.
func isWithinDir(absBaseDir, targetPath string) bool {
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	absTarget = filepath.Clean(absTarget)

	return strings.HasPrefix(absTarget, absBaseDir+string(filepath.Separator)) ||
		absTarget == absBaseDir
}

func relativize(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
