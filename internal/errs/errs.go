// Package errs defines the failure kinds reported by the updater.
// Failures wrap one of the sentinels with %w; callers classify them with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrArgument reports a missing or malformed source, target or flag.
	ErrArgument = errors.New("invalid argument")
	// ErrArchive reports an update archive that is missing, not a zip or unsafe.
	ErrArchive = errors.New("invalid archive")
	// ErrIO reports a filesystem failure while staging or reverting.
	ErrIO = errors.New("io failure")
	// ErrIntegrity reports a committed file whose content changed across the rename.
	ErrIntegrity = errors.New("integrity failure")
	// ErrElevation reports that the elevated child could not be spawned.
	ErrElevation = errors.New("elevation failure")
	// ErrCallbackTimeout reports an elevated child that never signalled completion.
	ErrCallbackTimeout = errors.New("callback timeout")
)

// Argument wraps ErrArgument with a formatted message.
func Argument(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrArgument, fmt.Sprintf(format, a...))
}

// Archive wraps ErrArchive and, when non-nil, the underlying cause.
func Archive(cause error, format string, a ...any) error {
	return wrap(ErrArchive, cause, format, a...)
}

// IO wraps ErrIO and, when non-nil, the underlying cause.
func IO(cause error, format string, a ...any) error {
	return wrap(ErrIO, cause, format, a...)
}

// Integrity wraps ErrIntegrity with a formatted message.
func Integrity(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, a...))
}

// Elevation wraps ErrElevation and, when non-nil, the underlying cause.
func Elevation(cause error, format string, a ...any) error {
	return wrap(ErrElevation, cause, format, a...)
}

// CallbackTimeout wraps ErrCallbackTimeout and, when non-nil, the underlying cause.
func CallbackTimeout(cause error, format string, a ...any) error {
	return wrap(ErrCallbackTimeout, cause, format, a...)
}

// Kind returns a short label for the failure kind of err, or "unknown".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrArgument):
		return "argument"
	case errors.Is(err, ErrArchive):
		return "archive"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrElevation):
		return "elevation"
	case errors.Is(err, ErrCallbackTimeout):
		return "callback-timeout"
	default:
		return "unknown"
	}
}

func wrap(kind, cause error, format string, a ...any) error {
	msg := fmt.Sprintf(format, a...)
	if cause == nil {
		return fmt.Errorf("%w: %s", kind, msg)
	}
	return fmt.Errorf("%w: %s: %w", kind, msg, cause)
}
