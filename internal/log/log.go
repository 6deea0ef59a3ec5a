// Package log provides the process-wide logger, a logrus logger behind a
// small interface.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"firestige.xyz/rocev2/internal/config"
)

type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger = newDefault()
)

// GetLogger returns the process logger. Before Init it writes text at info
// level to stderr.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init replaces the process logger with one built from cfg. Output always
// goes to stderr; stdout is left to command results.
func Init(cfg config.LogConfig) error {
	l, err := New(cfg, os.Stderr)
	if err != nil {
		return err
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

// New builds a logger writing to out and, when enabled, to a rotating file.
func New(cfg config.LogConfig, out io.Writer) (Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	w := NewMultiWriter().Add(out)
	if cfg.Outputs.File.Enabled {
		if err := w.AddFileWriter(cfg.Outputs.File); err != nil {
			return nil, fmt.Errorf("failed to create file output: %w", err)
		}
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	switch cfg.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: cfg.TimeFormat})
	case "text", "":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: cfg.TimeFormat, DisableColors: true})
	case "pattern":
		l.SetFormatter(&formatter{pattern: cfg.Pattern, time: cfg.TimeFormat})
	default:
		return nil, fmt.Errorf("unsupported log format: %s (must be text/json/pattern)", cfg.Format)
	}
	return &logrusAdapter{entry: logrus.NewEntry(l)}, nil
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}

func newDefault() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}
