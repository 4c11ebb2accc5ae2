package dispatch

import "time"

// Config is the dispatcher's single configuration structure (§6).
type Config struct {
	// BindAddr is the local address the Network Bridge listens on.
	// Default "127.0.0.1:8080".
	BindAddr SocketAddr

	// MaxPendingFramesPerPeer bounds the Queue Manager's per-peer FIFO.
	// Frames beyond this cap are deadlettered oldest-first. Default 1024.
	MaxPendingFramesPerPeer int

	// ConnectTimeout is the connect timeout setting. Default 5s. The core
	// does not read it: a peer stays Initializing until the Bridge reports
	// Opened or ConnectFailed, and is never moved to Blocked on a timeout.
	ConnectTimeout time.Duration

	// StopGrace bounds how long Stop waits for queued frames to drain
	// before closing connections unconditionally. Default 5s.
	StopGrace time.Duration
}

// DefaultConfig returns the configuration described in the external
// interfaces: bind to loopback:8080, a 1024-frame per-peer cap, and 5
// second connect/stop grace windows.
func DefaultConfig() Config {
	return Config{
		BindAddr:                SocketAddr{IP: "127.0.0.1", Port: 8080},
		MaxPendingFramesPerPeer: 1024,
		ConnectTimeout:          5 * time.Second,
		StopGrace:               5 * time.Second,
	}
}
