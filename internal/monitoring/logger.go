// Package monitoring holds the process-wide diagnostic logger used by the
// camera, bus, and storage layers. The pipeline package carries its own
// ops/diag/trace streams; everything else logs through Logf.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf
// and may be replaced with SetLogger; tests typically mute it.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger, which silences every package that logs through Logf.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}
