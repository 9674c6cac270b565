// Package logging - Logger construction.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Settings configures a logger.
type Settings struct {
	// Level is a logrus level name. Debug overrides it.
	Level string
	// Format is "text" or "json".
	Format string
	// File, when set, receives a copy of every line.
	File string
	// Debug forces the debug level.
	Debug bool
}

// New builds a logger writing to stdout and, optionally, to a file.
//
// Arguments:
//   - settings: The logger settings.
//
// Returns:
//   - *logrus.Logger: The logger.
//   - io.Closer: Closes the log file; a no-op when there is none.
//   - error: If the level or format is unknown or the file cannot be opened.
func New(settings Settings) (*logrus.Logger, io.Closer, error) {
	return newLogger(settings, os.Stdout)
}

func newLogger(settings Settings, stdout io.Writer) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()

	level := logrus.InfoLevel
	if settings.Level != "" {
		l, err := logrus.ParseLevel(settings.Level)
		if err != nil {
			return nil, nil, errors.Wrap(err, "invalid log level")
		}
		level = l
	}
	if settings.Debug {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	switch settings.Format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nil, errors.Errorf("unknown log format %q", settings.Format)
	}

	if settings.File == "" {
		log.SetOutput(stdout)
		return log, io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(settings.File), 0o755); err != nil {
		return nil, nil, errors.Wrap(err, "failed to create log directory")
	}
	f, err := os.OpenFile(settings.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open log file %s", settings.File)
	}
	log.SetOutput(io.MultiWriter(stdout, f))

	return log, f, nil
}
