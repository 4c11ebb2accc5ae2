package dispatch

import "github.com/btcsuite/btclog/v2"

// Subsystem is the logging subsystem name used when registering this
// package's logger with a daemon-wide logging backend.
const Subsystem = "DISP"

// log is the package-level logger used throughout the dispatcher. It
// defaults to a disabled logger so the package is silent until a caller
// wires up a real backend via UseLogger.
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by the dispatcher. This
// should be called once during daemon startup, before the Dispatcher Core
// is activated.
func UseLogger(logger btclog.Logger) {
	log = logger
}
