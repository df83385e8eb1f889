package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/mcdonaldj/updater/internal/callback"
	"github.com/mcdonaldj/updater/internal/elevation"
	"github.com/mcdonaldj/updater/internal/errs"
	"github.com/mcdonaldj/updater/internal/params"
)

// ElevatedRunner runs an update batch in an elevated process.
type ElevatedRunner interface {
	Run(ctx context.Context, req elevation.Request, onProgress func(completed int)) (int, error)
}

// Notifier reports progress to the process that spawned this one.
type Notifier interface {
	Send(msg callback.Message) error
}

// Options configures a Runner.
type Options struct {
	UpdateDelay time.Duration
	LaunchDelay time.Duration
	// Elevated marks this process as the elevated child: it never re-elevates,
	// skips the update delay and never launches.
	Elevated bool
	// LogFile and LogLevel are handed to an elevated child.
	LogFile  string
	LogLevel string
	Session  string
}

// Kind names the phase a failed task belonged to.
type Kind string

// Task kinds.
const (
	KindUpdate Kind = "update"
	KindLaunch Kind = "launch"
)

// Failure records a task that did not complete.
type Failure struct {
	Task string
	Kind Kind
	Err  error
}

// Summary reports what a Run did.
type Summary struct {
	// Completed counts update tasks processed, successful or not.
	Completed int
	// Updated counts update tasks that succeeded.
	Updated  int
	Launched int
	Failed   []Failure
	// ViaElevation is set when updates ran in an elevated child.
	ViaElevation bool
}

// Failures returns the failures of the given kind.
func (s Summary) Failures(kind Kind) []Failure {
	var out []Failure
	for _, f := range s.Failed {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Err returns the task failures combined, or nil.
func (s Summary) Err() error {
	var merr *multierror.Error
	for _, f := range s.Failed {
		merr = multierror.Append(merr, f.Err)
	}
	return merr.ErrorOrNil()
}

// Runner runs update tasks, directly or through an elevated child, then launch tasks.
type Runner struct {
	Options

	// Elevation runs the batch when any update needs elevation.
	Elevation ElevatedRunner
	// Notifier is set in the elevated child to report to the parent.
	Notifier Notifier
	States   *elevation.Tracker
	// OnProgress is called after each update task; optional.
	OnProgress func(completed, total int)

	log   *log.Entry
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a runner; Elevation and Notifier are set by the caller.
func NewRunner(opts Options, logger *log.Entry) *Runner {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Runner{
		Options: opts,
		States:  elevation.NewTracker(logger),
		log:     logger,
		sleep:   sleep,
	}
}

// Run executes updates and then launches. Task failures are logged and reported
// in the Summary; the returned error is set only when the batch itself fails
// (elevation, callback timeout, cancellation), in which case launches are skipped.
func (r *Runner) Run(ctx context.Context, updates []*UpdateTask, launches []*LaunchTask) (Summary, error) {
	var summary Summary

	if len(updates) > 0 {
		if err := r.updateDelay(ctx); err != nil {
			r.States.Set(elevation.StateFailed)
			return summary, err
		}
		if err := r.runUpdates(ctx, updates, &summary); err != nil {
			r.States.Set(elevation.StateFailed)
			return summary, err
		}
	}

	if r.Elevated {
		r.notify(callback.Done)
		if len(launches) > 0 {
			r.log.Debug("Elevated updater does not launch.")
		}
		return summary, nil
	}

	if len(launches) == 0 {
		return summary, nil
	}

	if r.LaunchDelay > 0 {
		r.log.Infof("Launch delay %s...", r.LaunchDelay)
		if err := r.sleep(ctx, r.LaunchDelay); err != nil {
			return summary, err
		}
	}

	for _, t := range launches {
		if err := t.Execute(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			r.fail(&summary, KindLaunch, t, err)
			continue
		}
		summary.Launched++
	}

	return summary, nil
}

func (r *Runner) runUpdates(ctx context.Context, updates []*UpdateTask, summary *Summary) error {
	if !r.Elevated && r.needsElevation(updates) {
		return r.runElevated(ctx, updates, summary)
	}

	r.States.Set(elevation.StateRunning)

	total := len(updates)
	for _, t := range updates {
		err := t.Execute(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			r.fail(summary, KindUpdate, t, err)
		} else {
			r.log.Infof("Successful update: %s", t.Source)
			summary.Updated++
			r.notify(callback.Progress)
		}

		summary.Completed++
		if r.OnProgress != nil {
			r.OnProgress(summary.Completed, total)
		}
	}

	r.States.Set(elevation.StateDone)
	return nil
}

// updateDelay waits before updating, ahead of any elevation. The elevated child
// never waits.
func (r *Runner) updateDelay(ctx context.Context) error {
	if r.UpdateDelay <= 0 {
		return nil
	}
	if r.Elevated {
		r.log.Debugf("Update delay %s skipped in elevated updater.", r.UpdateDelay)
		return nil
	}
	r.log.Infof("Update delay %s...", r.UpdateDelay)
	return r.sleep(ctx, r.UpdateDelay)
}

func (r *Runner) needsElevation(updates []*UpdateTask) bool {
	needs := false
	for _, t := range updates {
		if t.NeedsElevation() {
			r.log.Debugf("Needs elevation: %s", t.Target)
			needs = true
		}
	}
	return needs
}

func (r *Runner) runElevated(ctx context.Context, updates []*UpdateTask, summary *Summary) error {
	if r.Elevation == nil {
		return errs.Elevation(nil, "elevation required but not available")
	}

	req := elevation.Request{
		Pairs:    make([]params.Pair, 0, len(updates)),
		LogFile:  r.LogFile,
		LogLevel: r.LogLevel,
		Session:  r.Session,
	}
	for _, t := range updates {
		req.Pairs = append(req.Pairs, params.Pair{Source: t.Source, Target: t.Target})
	}

	total := len(updates)
	completed, err := r.Elevation.Run(ctx, req, func(n int) {
		if r.OnProgress != nil {
			r.OnProgress(n, total)
		}
	})
	summary.Updated = completed
	summary.ViaElevation = true
	if err != nil {
		summary.Completed = completed
		return err
	}

	summary.Completed = total
	if failed := total - completed; failed > 0 {
		summary.Failed = append(summary.Failed, Failure{
			Task: "elevated update",
			Kind: KindUpdate,
			Err:  fmt.Errorf("%d of %d updates failed in the elevated updater", failed, total),
		})
		r.log.Errorf("%d of %d updates failed in the elevated updater", failed, total)
	}
	return nil
}

func (r *Runner) notify(msg callback.Message) {
	if r.Notifier == nil {
		return
	}
	if err := r.Notifier.Send(msg); err != nil {
		r.log.Warnf("callback %s failed: %v", msg, err)
	}
}

func (r *Runner) fail(summary *Summary, kind Kind, t Task, err error) {
	summary.Failed = append(summary.Failed, Failure{Task: t.String(), Kind: kind, Err: err})

	entry := r.log.WithField("task", t.String()).WithField("kind", errs.Kind(err))
	if errors.Is(err, errs.ErrIntegrity) {
		entry = entry.WithField("integrity", true)
	}
	entry.Error(err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
