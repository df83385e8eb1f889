package elevation

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/mcdonaldj/updater/internal/callback"
	"github.com/mcdonaldj/updater/internal/errs"
	"github.com/mcdonaldj/updater/internal/logging"
	"github.com/mcdonaldj/updater/internal/params"
	"github.com/mcdonaldj/updater/internal/ports"
)

// DefaultExitGrace is how long a done message may trail the child's exit.
const DefaultExitGrace = time.Second

// Request describes the update batch handed to the elevated child. Any update
// delay is spent by the caller before Run, so the child starts work at once.
type Request struct {
	Pairs []params.Pair
	// LogFile is the parent's log file; the child logs next to it.
	LogFile  string
	LogLevel string
	// Session correlates parent and child logs; generated when empty.
	Session string
}

// Bootstrap spawns an elevated updater and waits for its callbacks.
type Bootstrap struct {
	Elevator ports.Elevator
	// Executable locates the updater binary to re-run.
	Executable func() (string, error)
	// Output receives the child's stdout and stderr; nil discards them.
	Output io.Writer

	AcceptTimeout   time.Duration
	CallbackTimeout time.Duration
	ExitGrace       time.Duration

	States *Tracker
	Log    *log.Entry
}

// NewBootstrap returns a bootstrap using elevator and the running executable.
func NewBootstrap(elevator ports.Elevator, logger *log.Entry) *Bootstrap {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Bootstrap{
		Elevator:        elevator,
		Executable:      Executable,
		AcceptTimeout:   callback.DefaultAcceptTimeout,
		CallbackTimeout: callback.DefaultReadTimeout,
		ExitGrace:       DefaultExitGrace,
		States:          NewTracker(logger),
		Log:             logger,
	}
}

// Executable returns the resolved path of the running binary.
func Executable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}

// Run spawns the elevated child for req and blocks until it reports done. It
// returns the number of progress messages received. onProgress may be nil.
func (b *Bootstrap) Run(ctx context.Context, req Request, onProgress func(completed int)) (int, error) {
	if req.Session == "" {
		req.Session = uuid.NewString()
	}
	logger := b.Log.WithField("session", req.Session)

	b.States.Set(StateSpawningElevated)

	session, err := callback.Listen(len(req.Pairs), logger)
	if err != nil {
		b.States.Set(StateFailed)
		return 0, errs.Elevation(err, "could not open callback channel")
	}
	defer func() { _ = session.Close() }()
	session.AcceptTimeout = b.AcceptTimeout
	session.ReadTimeout = b.CallbackTimeout

	cmd, err := b.command(req, session.Port)
	if err != nil {
		b.States.Set(StateFailed)
		return 0, err
	}

	logger.Infof("Elevated update: %s", strings.Join(cmd.Args, " "))
	if err := cmd.Start(); err != nil {
		b.States.Set(StateFailed)
		return 0, errs.Elevation(err, "could not start elevated updater")
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	b.States.Set(StateWaitingForCallback)

	waited := make(chan error, 1)
	go func() { waited <- session.Wait(ctx, onProgress) }()

	select {
	case err := <-waited:
		if err != nil {
			b.States.Set(StateFailed)
			if cmd.Process != nil {
				logger.Warnf("Elevated updater (pid %d) left running after: %v", cmd.Process.Pid, err)
			}
			return session.Completed, b.waitErr(err)
		}

	case exitErr := <-exited:
		grace := time.NewTimer(b.ExitGrace)
		defer grace.Stop()

		select {
		case err := <-waited:
			if err != nil {
				b.States.Set(StateFailed)
				return session.Completed, b.waitErr(err)
			}
		case <-grace.C:
			_ = session.Close()
			<-waited
			b.States.Set(StateFailed)
			if exitErr == nil {
				exitErr = errors.New("exited without signalling done")
			}
			return session.Completed, errs.Elevation(exitErr, "elevated updater stopped after %d/%d successful updates", session.Completed, len(req.Pairs))
		}
	}

	b.States.Set(StateDone)
	logger.Info("Elevated update complete.")
	return session.Completed, nil
}

func (b *Bootstrap) waitErr(err error) error {
	if errors.Is(err, errs.ErrCallbackTimeout) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errs.Elevation(err, "elevated updater callback failed")
}

// command builds the elevated child command line for req.
func (b *Bootstrap) command(req Request, port int) (*exec.Cmd, error) {
	exe, err := b.Executable()
	if err != nil {
		return nil, errs.Elevation(err, "could not locate updater executable")
	}

	args := new(params.Builder).
		Flag(params.Elevated).
		Flag(params.Callback, strconv.Itoa(port)).
		Flag(params.Session, req.Session)
	if req.LogFile != "" {
		args.Flag(params.LogFile, logging.ElevatedLogPath(req.LogFile))
	}
	if req.LogLevel != "" {
		args.Flag(params.LogLevel, req.LogLevel)
	}
	updates := make([]string, 0, 2*len(req.Pairs))
	for _, p := range req.Pairs {
		updates = append(updates, p.Source, p.Target)
	}
	args.Flag(params.Update, updates...)

	var cmd *exec.Cmd
	if b.Elevator.ForwardsStdin() {
		lines, err := args.Lines()
		if err != nil {
			return nil, err
		}
		cmd = exec.Command(exe, params.Stdin)
		cmd.Stdin = strings.NewReader(lines)
	} else {
		cmd = exec.Command(exe, args.Tokens()...)
	}
	if wd, err := os.Getwd(); err == nil {
		cmd.Dir = wd
	}
	if b.Output != nil {
		cmd.Stdout = b.Output
		cmd.Stderr = b.Output
	}

	elevated, err := b.Elevator.Elevate(cmd)
	if err != nil {
		if errors.Is(err, errs.ErrElevation) {
			return nil, err
		}
		return nil, errs.Elevation(err, "could not elevate %s", exe)
	}
	return elevated, nil
}
