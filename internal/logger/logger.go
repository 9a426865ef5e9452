// Package logger configures the process-wide logrus logger.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Options struct {
	Level  string
	Format string // "text" or "json"
	Debug  bool
	Output io.Writer
}

// New builds a logger from opts. Unknown levels fall back to info.
func New(opts Options) *logrus.Logger {
	l := logrus.New()
	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stderr)
	}

	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	if opts.Debug {
		level = logrus.DebugLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(opts.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
	}
	return l
}

// Component returns an entry tagged with the component name.
func Component(l logrus.FieldLogger, name string) logrus.FieldLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return l.WithField("component", name)
}

// Discard is a logger that drops everything, used by tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
