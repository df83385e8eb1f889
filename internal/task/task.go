// Package task runs the update and launch phases of an updater invocation.
package task

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/mcdonaldj/updater/internal/elevation"
	"github.com/mcdonaldj/updater/internal/errs"
	"github.com/mcdonaldj/updater/internal/ports"
)

// Task is a unit of work run by the Runner.
type Task interface {
	Execute(ctx context.Context) error
	NeedsElevation() bool
	String() string
}

// Applier applies an update archive to a target directory.
type Applier interface {
	Apply(archivePath, targetDir string) error
}

// UpdateTask applies one update archive to one target directory.
type UpdateTask struct {
	Source string
	Target string

	applier       Applier
	needsElevated func(path string) bool
}

// NewUpdateTask returns an update task with absolute source and target paths.
func NewUpdateTask(source, target string, applier Applier) *UpdateTask {
	return &UpdateTask{
		Source:        absPath(source),
		Target:        absPath(target),
		applier:       applier,
		needsElevated: elevation.NeedsElevation,
	}
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// Execute checks the source and target and applies the update.
func (t *UpdateTask) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := os.Stat(t.Source); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errs.Argument("source parameter not found: %s", t.Source)
		}
		return errs.IO(err, "could not read source %s", t.Source)
	}

	info, err := os.Stat(t.Target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errs.Argument("target parameter not found: %s", t.Target)
		}
		return errs.IO(err, "could not read target %s", t.Target)
	}
	if !info.IsDir() {
		return errs.IO(nil, "target must be a folder: %s", t.Target)
	}

	return t.applier.Apply(t.Source, t.Target)
}

// NeedsElevation reports whether the target exists and is not writable.
func (t *UpdateTask) NeedsElevation() bool {
	return t.needsElevated(t.Target)
}

func (t *UpdateTask) String() string {
	return fmt.Sprintf("update %s -> %s", t.Source, t.Target)
}

// LaunchTask starts a program once updates are done.
type LaunchTask struct {
	Argv     []string
	Dir      string
	Elevated bool

	launcher ports.ProcessLauncher
	elevator ports.Elevator
	log      *log.Entry
}

// NewLaunchTask returns a launch task for argv run in dir.
func NewLaunchTask(argv []string, dir string, elevated bool, launcher ports.ProcessLauncher, elevator ports.Elevator, logger *log.Entry) *LaunchTask {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &LaunchTask{
		Argv:     argv,
		Dir:      dir,
		Elevated: elevated,
		launcher: launcher,
		elevator: elevator,
		log:      logger,
	}
}

// Execute starts the program without waiting for it. An elevated launch from a
// normal process goes through the elevator; a normal launch from an elevated
// process is reduced to the invoking user where possible.
func (t *LaunchTask) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(t.Argv) == 0 || t.Argv[0] == "" {
		return errs.Argument("no launch command specified")
	}

	cmd := exec.Command(t.Argv[0], t.Argv[1:]...)
	cmd.Dir = t.Dir

	processElevated := t.elevator.IsElevated()
	switch {
	case t.Elevated && !processElevated:
		elevated, err := t.elevator.Elevate(cmd)
		if err != nil {
			return errs.Elevation(err, "could not elevate %s", t.Argv[0])
		}
		cmd = elevated
	case !t.Elevated && processElevated:
		cmd = t.elevator.Reduce(cmd)
	}

	t.log.Infof("Launching: %s", strings.Join(cmd.Args, " "))
	if err := t.launcher.Start(cmd); err != nil {
		return err
	}
	t.log.Trace("Launched process started.")
	return nil
}

// NeedsElevation reports whether the launch was requested elevated.
func (t *LaunchTask) NeedsElevation() bool { return t.Elevated }

func (t *LaunchTask) String() string {
	return "launch " + strings.Join(t.Argv, " ")
}

var (
	_ Task = (*UpdateTask)(nil)
	_ Task = (*LaunchTask)(nil)
)
