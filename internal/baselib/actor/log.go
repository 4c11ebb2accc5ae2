package actor

import "github.com/btcsuite/btclog/v2"

// Subsystem is the logging subsystem name used when registering this
// package's logger with a daemon-wide logging backend.
const Subsystem = "ACTR"

// log is the package-level logger used throughout the actor runtime. It
// defaults to a disabled logger so the package is silent until a caller
// wires up a real backend via UseLogger.
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by the actor runtime. This
// should be called once during daemon startup, before any actor is started.
func UseLogger(logger btclog.Logger) {
	log = logger
}
