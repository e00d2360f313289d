package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Options struct {
	Level string
	// File receives the log in addition to, or instead of, stderr.
	File string
	// Interactive means the terminal belongs to the TUI; logs then only go
	// to File, or nowhere.
	Interactive bool
	JSON        bool
}

// Setup configures the standard logrus logger. It returns the opened log
// file, if any; the caller must close it.
func Setup(opts Options) (io.Closer, error) {
	return configure(logrus.StandardLogger(), opts, os.Stderr)
}

func configure(logger *logrus.Logger, opts Options, stderr io.Writer) (io.Closer, error) {
	var writers []io.Writer
	var logFile *os.File

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		logFile = f
		writers = append(writers, f)
	}

	if !opts.Interactive {
		writers = append(writers, stderr)
	} else if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	if len(writers) == 1 {
		logger.SetOutput(writers[0])
	} else {
		logger.SetOutput(io.MultiWriter(writers...))
	}

	level := ParseLevel(opts.Level)
	logger.SetLevel(level)
	logger.SetReportCaller(level >= logrus.DebugLevel)

	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			DisableColors:    logFile != nil || opts.Interactive,
			QuoteEmptyFields: true,
		})
	}

	if logFile == nil {
		return nil, nil
	}
	return logFile, nil
}

// ParseLevel maps a level name to a logrus level, defaulting to warn so a
// plain report stays quiet.
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.WarnLevel
	}
	return lvl
}
