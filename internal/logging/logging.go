// Package logging builds the logrus loggers used throughout vouch.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"github.com/sirupsen/logrus"
)

// Options controls where log output goes.
type Options struct {
	Level string
	// File, when set, receives a copy of all output and is rotated once it
	// exceeds MaxKB kilobytes, keeping MaxRolls old files.
	File     string
	MaxKB    int64
	MaxRolls int
	Stderr   io.Writer
}

// Logger wraps a logrus logger and the rotator behind it, if any.
type Logger struct {
	*logrus.Logger
	rotator *rotator.Rotator
}

// New builds a text-formatted logger per opts.
func New(opts Options) (*Logger, error) {
	level := opts.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	out := opts.Stderr
	if out == nil {
		out = os.Stderr
	}
	l := &Logger{Logger: logrus.New()}
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		maxKB := opts.MaxKB
		if maxKB <= 0 {
			maxKB = 1024
		}
		r, err := rotator.New(opts.File, maxKB, false, opts.MaxRolls)
		if err != nil {
			return nil, fmt.Errorf("failed to setup logfile %s: %w", opts.File, err)
		}
		l.rotator = r
		out = io.MultiWriter(out, r)
	}
	l.SetOutput(out)
	return l, nil
}

// Close flushes and closes the rotated log file.
func (l *Logger) Close() error {
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

// Discard returns an entry whose output goes nowhere. Packages use it when
// the caller passes a nil logger.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// OrDiscard returns log, or a discarding entry when log is nil.
func OrDiscard(log *logrus.Entry) *logrus.Entry {
	if log == nil {
		return Discard()
	}
	return log
}
