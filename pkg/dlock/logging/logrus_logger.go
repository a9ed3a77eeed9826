// Package logging provides the structured-logging backend used across
// the dlock engine. It implements types.Logger on top of logrus instead
// of the bare stdlib *log.Logger the reference implementation favored,
// so fields attached with WithField (the engine attaches pid) are
// carried on every entry as structured key/value pairs.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jabolina/lamport-lock/pkg/dlock/types"
)

// New builds the default Logger, writing text lines with full
// timestamps to stderr at Info
// level. Call ToggleDebug to raise the level for local runs.
func New() *Logrus {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return &Logrus{entry: logrus.NewEntry(l)}
}

// Logrus adapts a logrus.Entry to the types.Logger interface.
type Logrus struct {
	entry *logrus.Entry
}

// ToggleDebug raises or lowers the logger's level, mirroring the
// reference implementation's DefaultLogger.ToggleDebug.
func (l *Logrus) ToggleDebug(enabled bool) {
	if enabled {
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	}
}

func (l *Logrus) WithField(key string, value interface{}) types.Logger {
	return &Logrus{entry: l.entry.WithField(key, value)}
}

func (l *Logrus) Debug(v ...interface{})                 { l.entry.Debug(v...) }
func (l *Logrus) Debugf(format string, v ...interface{}) { l.entry.Debugf(format, v...) }
func (l *Logrus) Info(v ...interface{})                  { l.entry.Info(v...) }
func (l *Logrus) Infof(format string, v ...interface{})  { l.entry.Infof(format, v...) }
func (l *Logrus) Warn(v ...interface{})                  { l.entry.Warn(v...) }
func (l *Logrus) Warnf(format string, v ...interface{})  { l.entry.Warnf(format, v...) }
func (l *Logrus) Error(v ...interface{})                 { l.entry.Error(v...) }
func (l *Logrus) Errorf(format string, v ...interface{}) { l.entry.Errorf(format, v...) }

// Fatal logs then exits the process, matching the reference logger's
// contract: a Fatal call never returns.
func (l *Logrus) Fatal(v ...interface{})                 { l.entry.Fatal(v...) }
func (l *Logrus) Fatalf(format string, v ...interface{}) { l.entry.Fatalf(format, v...) }
