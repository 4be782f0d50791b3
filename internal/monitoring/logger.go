// Package monitoring is the diagnostic log shared by gyrohookd's store,
// ingest server, serial source, journal and admin routes. Every line goes
// through Logf so tests can capture dropped frames and persistence failures,
// and the daemon can redirect or mute the output as a whole.
package monitoring

import "log"

// Logf is the package-level diagnostic logger shared by the daemon's
// components. It defaults to log.Printf; SetLogger replaces or mutes it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs a recoverable problem: a dropped frame, a retried reload.
func Warnf(format string, v ...interface{}) {
	Logf("warning: "+format, v...)
}

// Errorf logs a failure that ended an operation.
func Errorf(format string, v ...interface{}) {
	Logf("error: "+format, v...)
}
