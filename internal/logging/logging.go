// Package logging configures the process-wide logrus instance used by
// cmd/sniveil, writing either to stderr or to a lumberjack-rotated file set
// as the logger's output.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger built by New.
type Options struct {
	// Level is one of logrus's level names (trace, debug, info, warn,
	// error). An unrecognized value falls back to info.
	Level string
	// FilePath, if non-empty, routes output through a rotating
	// lumberjack writer instead of stderr.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a *logrus.Logger per opts. Output always goes to exactly one
// writer: stderr by default, or a lumberjack-rotated file when FilePath is
// set.
func New(opts Options) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000",
		FullTimestamp:   true,
	})

	if opts.FilePath != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
		})
	} else {
		logger.SetOutput(os.Stderr)
	}

	return logger
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// VerboseToLevel maps the configuration's coarse verbosity setting onto a
// logrus level name.
func VerboseToLevel(verbose string) string {
	switch strings.ToLower(verbose) {
	case "silent":
		return "error"
	case "trace":
		return "trace"
	default:
		return "info"
	}
}
