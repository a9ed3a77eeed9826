package types

// Logger is the logging contract every dlock component depends on. It
// mirrors the level set the protocol needs: Debug for the per-message
// trace, Info/Warn for protocol-violation reports, Error for transport
// failures and Fatal for conditions that must terminate the peer.
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})

	// WithField returns a derived Logger that attaches key on every
	// subsequent entry, e.g. peer-scoped loggers attach "pid".
	WithField(key string, value interface{}) Logger
}
