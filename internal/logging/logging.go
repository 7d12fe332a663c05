// Package logging builds the loggers the daemon and CLI share.
//
// Logs go to stderr always; when a log file is configured they are also
// written there with size-based rotation, so a long-running daemon cannot
// fill the disk.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures log output.
type Options struct {
	// Path of the rotating log file. Empty disables file logging.
	Path string

	// MaxSizeMB is the size at which the file rotates (default 5).
	MaxSizeMB int

	// MaxBackups is how many rotated files to keep (default 3).
	MaxBackups int

	// Quiet suppresses stderr output (file logging still applies).
	Quiet bool
}

// New creates a logger with the given prefix writing to stderr and, when
// configured, a rotating file.
func New(prefix string, opts Options) *log.Logger {
	var writers []io.Writer

	if !opts.Quiet {
		writers = append(writers, os.Stderr)
	}

	if opts.Path != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 5
		}
		maxBackups := opts.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
		})
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	return log.New(out, prefix, log.LstdFlags)
}
