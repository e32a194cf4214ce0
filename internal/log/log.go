// Package log provides the process logger, backed by logrus.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"firestige.xyz/nfd/internal/config"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger = newDefault()
)

// GetLogger returns the process logger. Before Init it writes text at info
// level to stdout.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init replaces the process logger according to cfg.
func Init(cfg config.LogConfig) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

// New builds a logger from cfg without installing it.
func New(cfg config.LogConfig) (Logger, error) {
	return NewWithOutput(cfg, os.Stdout)
}

// NewWithOutput is New with stdout replaced by w.
func NewWithOutput(cfg config.LogConfig, w io.Writer) (Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	l := logrus.New()
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: cfg.TimeFormat})
	case "text", "":
		l.SetFormatter(newFormatter(cfg.Pattern, cfg.TimeFormat))
	default:
		return nil, fmt.Errorf("unsupported log format: %s (must be json or text)", cfg.Format)
	}

	// Stdout is always included.
	out := NewMultiWriter().Add(w)
	if cfg.Outputs.File.Enabled {
		w, err := createFileWriter(cfg.Outputs.File)
		if err != nil {
			return nil, fmt.Errorf("failed to create file output: %w", err)
		}
		out.Add(w)
	}
	l.SetOutput(out)

	return wrap(logrus.NewEntry(l)), nil
}

func newDefault() Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(newFormatter("", ""))
	return wrap(logrus.NewEntry(l))
}

// parseLevel accepts trace, debug, info, warn (or warning) and error.
func parseLevel(levelStr string) (logrus.Level, error) {
	switch strings.ToLower(levelStr) {
	case "trace":
		return logrus.TraceLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown level: %s", levelStr)
	}
}
