// Package logging configures the logrus logger used by the updater.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mcdonaldj/updater/internal/errs"
)

const (
	logExtension  = ".log"
	elevExtension = ".elev"

	// LevelNone silences all output.
	LevelNone = "none"
	// LevelAll enables every level.
	LevelAll = "all"
)

// Options selects where and how much the updater logs.
type Options struct {
	Level string
	// File is the log file path; empty logs to the console only.
	File string
	// Append keeps the existing file instead of rotating it away.
	Append     bool
	MaxSizeMB  int
	MaxBackups int
	// Console receives a copy of every entry; defaults to os.Stderr.
	Console io.Writer
}

// ParseLevel accepts logrus level names plus "none" and "all".
// The returned bool is false when output should be discarded.
func ParseLevel(level string) (log.Level, bool, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return log.InfoLevel, true, nil
	case LevelNone:
		return log.PanicLevel, false, nil
	case LevelAll:
		return log.TraceLevel, true, nil
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel, true, errs.Argument("unknown log level %q", level)
	}
	return lvl, true, nil
}

// Init configures logger from opts. The returned closer releases the log file and
// is never nil.
func Init(logger *log.Logger, opts Options) (io.Closer, error) {
	level, enabled, err := ParseLevel(opts.Level)
	if err != nil {
		return nopCloser{}, err
	}

	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	logger.SetLevel(level)

	if !enabled {
		logger.SetOutput(io.Discard)
		return nopCloser{}, nil
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	if opts.File == "" {
		logger.SetOutput(console)
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		logger.SetOutput(console)
		return nopCloser{}, errs.IO(err, "could not create log folder for %s", opts.File)
	}

	lumberjackLogger := &lumberjack.Logger{
		// Log file absolute path, os agnostic
		Filename:   filepath.ToSlash(opts.File),
		MaxSize:    opts.MaxSizeMB, // MB
		MaxBackups: opts.MaxBackups,
	}
	if !opts.Append {
		if _, statErr := os.Stat(opts.File); statErr == nil {
			if err := lumberjackLogger.Rotate(); err != nil {
				logger.SetOutput(console)
				return nopCloser{}, errs.IO(err, "could not rotate %s", opts.File)
			}
		}
	}

	logger.SetOutput(io.MultiWriter(console, lumberjackLogger))
	return lumberjackLogger, nil
}

// ElevatedLogPath returns the log file used by an elevated child of a process
// logging to path: "updater.log" becomes "updater.elev.log".
func ElevatedLogPath(path string) string {
	dir, name := filepath.Split(path)
	if strings.HasSuffix(name, logExtension) {
		name = strings.TrimSuffix(name, logExtension) + elevExtension + logExtension
	} else {
		name += elevExtension
	}
	return filepath.Join(dir, name)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
