// Package logging builds the process logger on top of logrus.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger. Its Printf satisfies the Logger interfaces
// declared by the pipeline packages.
type Logger struct {
	*logrus.Logger
}

// Options configure New.
type Options struct {
	Out   io.Writer // defaults to stderr
	Level string    // debug, info, warn, error; anything else is info
	JSON  bool
}

func New(opt Options) *Logger {
	log := logrus.New()
	out := opt.Out
	if out == nil {
		out = os.Stderr
	}
	log.SetOutput(out)
	if opt.JSON {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
	l := &Logger{Logger: log}
	l.SetLevel(opt.Level)
	return l
}

// Discard returns a logger that writes nowhere.
func Discard() *Logger {
	return New(Options{Out: io.Discard})
}

// SetLevel sets the logging level by name.
func (l *Logger) SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l.Logger.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		l.Logger.SetLevel(logrus.WarnLevel)
	case "error":
		l.Logger.SetLevel(logrus.ErrorLevel)
	default:
		l.Logger.SetLevel(logrus.InfoLevel)
	}
}

// Component returns an entry tagged with component=name. The entry also
// has Printf, so it can be handed to a single subsystem.
func (l *Logger) Component(name string) *logrus.Entry {
	return l.WithField("component", name)
}
