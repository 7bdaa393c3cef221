// Package logrus adapts github.com/sirupsen/logrus to logging.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-repository-mirror/logging"
)

var _ logging.Logger = Logger{}

// Logger forwards to a logrus entry.
type Logger struct{ E *logrus.Entry }

// New wraps a logrus logger.
func New(l *logrus.Logger) Logger {
	return Logger{E: logrus.NewEntry(l)}
}

func (l Logger) Debug(msg string, f logging.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l Logger) Info(msg string, f logging.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f logging.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f logging.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
