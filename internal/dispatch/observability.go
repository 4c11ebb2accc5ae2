package dispatch

import "sync/atomic"

// ObservabilityEvent is the sum type emitted to an ObservabilitySink for
// conditions that don't warrant an error return but that an operator or
// test harness needs visibility into (§6, §7).
type ObservabilityEvent interface {
	observabilityEventMarker()
}

// DeadletterEvent records an envelope that could not be delivered, along
// with the reason it was dropped.
type DeadletterEvent struct {
	Envelope MessageEnvelope
	Reason   error
}

func (DeadletterEvent) observabilityEventMarker() {}

// DuplicatePathEvent records a registration attempt that collided with an
// existing named-path registration.
type DuplicatePathEvent struct {
	Path ActorPath
}

func (DuplicatePathEvent) observabilityEventMarker() {}

// QueueOverflowEvent records a frame dropped because a peer's pending
// queue exceeded its configured capacity.
type QueueOverflowEvent struct {
	Peer  SocketAddr
	Frame Frame
}

func (QueueOverflowEvent) observabilityEventMarker() {}

// ProtocolViolationEvent records a Cast envelope or malformed inbound
// frame header.
type ProtocolViolationEvent struct {
	Detail string
}

func (ProtocolViolationEvent) observabilityEventMarker() {}

// ObservabilitySink receives ObservabilityEvents as the Dispatcher Core
// emits them. internal/deadletter.Store and internal/admin.Hub both
// implement this interface to persist/broadcast dispatcher activity.
type ObservabilitySink interface {
	Observe(ev ObservabilityEvent)
}

// Counters tracks the observable counters named in the external
// interfaces: frames sent directly vs. queued vs. deadlettered, and
// connection churn. All fields are updated with atomic operations so
// admin/introspection reads never need to coordinate with the
// dispatcher's single-threaded receive loop.
type Counters struct {
	FramesSentDirect   atomic.Uint64
	FramesQueued       atomic.Uint64
	FramesDeadlettered atomic.Uint64
	ConnectionsOpened  atomic.Uint64
	ConnectionsClosed  atomic.Uint64
}

// Snapshot is a point-in-time read of Counters, safe to serialize for the
// admin surface.
type Snapshot struct {
	FramesSentDirect   uint64
	FramesQueued       uint64
	FramesDeadlettered uint64
	ConnectionsOpened  uint64
	ConnectionsClosed  uint64
}

// Snapshot reads every counter into a plain struct.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		FramesSentDirect:   c.FramesSentDirect.Load(),
		FramesQueued:       c.FramesQueued.Load(),
		FramesDeadlettered: c.FramesDeadlettered.Load(),
		ConnectionsOpened:  c.ConnectionsOpened.Load(),
		ConnectionsClosed:  c.ConnectionsClosed.Load(),
	}
}

// multiSink fans an ObservabilityEvent out to every configured sink,
// mirroring internal/build.HandlerSet's fan-out pattern for loggers.
type multiSink struct {
	sinks []ObservabilitySink
}

// NewMultiSink combines zero or more sinks into one.
func NewMultiSink(sinks ...ObservabilitySink) ObservabilitySink {
	return &multiSink{sinks: sinks}
}

// Observe implements ObservabilitySink by forwarding to every member sink.
func (m *multiSink) Observe(ev ObservabilityEvent) {
	for _, sink := range m.sinks {
		sink.Observe(ev)
	}
}
