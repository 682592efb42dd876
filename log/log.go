// Package log provides the prefixed loggers used by the scsi and
// block packages. The core stays quiet at Info level; per-command
// traces are emitted at Debug.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var Root = &logrus.Logger{
	Out:   os.Stdout,
	Level: logrus.TraceLevel,
	Formatter: &prefixed.TextFormatter{
		DisableColors: func() bool {
			term, ok := os.LookupEnv("TERM")
			return term == "" || !ok
		}(),
		ForceFormatting: true,
		TimestampFormat: "2006-01-02 15:04:05",
	},
}

// ChildLogger tags every entry with a subsystem prefix and applies its
// own level gate on top of the parent's.
type ChildLogger struct {
	parent *logrus.Logger
	prefix string
	level  logrus.Level
}

func NewChildLogger(parent *logrus.Logger, prefix string, debug bool) *ChildLogger {
	lc := &ChildLogger{
		parent: parent,
		prefix: prefix,
	}

	if debug {
		lc.level = logrus.DebugLevel
	} else {
		lc.level = logrus.InfoLevel
	}

	return lc
}

func (l *ChildLogger) shouldOutput(level logrus.Level) bool {
	return l.level >= level
}

func (l *ChildLogger) Debug(args ...interface{}) {
	if l.shouldOutput(logrus.DebugLevel) {
		l.parent.WithField("prefix", l.prefix).Debug(args...)
	}
}

func (l *ChildLogger) Info(args ...interface{}) {
	if l.shouldOutput(logrus.InfoLevel) {
		l.parent.WithField("prefix", l.prefix).Info(args...)
	}
}

func (l *ChildLogger) Warning(args ...interface{}) {
	if l.shouldOutput(logrus.WarnLevel) {
		l.parent.WithField("prefix", l.prefix).Warning(args...)
	}
}

func (l *ChildLogger) Error(args ...interface{}) {
	if l.shouldOutput(logrus.ErrorLevel) {
		l.parent.WithField("prefix", l.prefix).Error(args...)
	}
}

func (l *ChildLogger) Debugf(format string, args ...interface{}) {
	if l.shouldOutput(logrus.DebugLevel) {
		l.parent.WithField("prefix", l.prefix).Debugf(format, args...)
	}
}

func (l *ChildLogger) Infof(format string, args ...interface{}) {
	if l.shouldOutput(logrus.InfoLevel) {
		l.parent.WithField("prefix", l.prefix).Infof(format, args...)
	}
}

func (l *ChildLogger) Warningf(format string, args ...interface{}) {
	if l.shouldOutput(logrus.WarnLevel) {
		l.parent.WithField("prefix", l.prefix).Warningf(format, args...)
	}
}

func (l *ChildLogger) Errorf(format string, args ...interface{}) {
	if l.shouldOutput(logrus.ErrorLevel) {
		l.parent.WithField("prefix", l.prefix).Errorf(format, args...)
	}
}

func (l *ChildLogger) IsDebug() bool {
	return l.level >= logrus.DebugLevel
}

// Children holds one child logger per subsystem.
type Children struct {
	SCSI  *ChildLogger
	Block *ChildLogger
}

func PrepareChildren(parent *logrus.Logger, scsi, block bool) *Children {
	return &Children{
		SCSI:  NewChildLogger(parent, "scsi", scsi),
		Block: NewChildLogger(parent, "block", block),
	}
}
