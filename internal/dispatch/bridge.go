package dispatch

import "fmt"

// SocketAddr keys the Connection Table and Queue Manager: it's the (ip,
// port) pair a peer is reachable at, independent of any particular
// connection attempt.
type SocketAddr struct {
	IP   string
	Port uint16
}

// String implements fmt.Stringer for log lines and observability events.
func (a SocketAddr) String() string {
	return fmt.Sprintf("%s:%d", a.IP, a.Port)
}

// TrySendResult is the outcome of a non-blocking send on a peer's send
// channel.
type TrySendResult uint8

const (
	// TrySendOk indicates the frame was accepted by the channel.
	TrySendOk TrySendResult = iota

	// TrySendFull indicates the channel's buffer is saturated; this is
	// not an error, only a backpressure signal (§7).
	TrySendFull

	// TrySendDisconnected indicates the channel's consumer side is gone;
	// the dispatcher treats this as peer loss.
	TrySendDisconnected
)

// SendChannel is the per-connection sink the Network Bridge hands to the
// dispatcher via an OpenedEvent. It is a bounded, single-producer
// (dispatcher) single-consumer (Bridge connection task) channel.
type SendChannel interface {
	// TrySend attempts to hand frame to the channel without blocking.
	TrySend(frame Frame) TrySendResult
}

// Bridge is the transport-side collaborator the dispatcher depends on
// (§4.4). It is specified only at its interface; internal/networkbridge
// provides a concrete TCP implementation.
type Bridge interface {
	// Start begins listening on bindAddr and returns once listening has
	// either succeeded or failed. Inbound events are delivered to the
	// sink registered via SetDispatcher.
	Start(bindAddr SocketAddr) error

	// Connect initiates a connection to peerAddr over transport. A later
	// OpenedEvent or ConnectFailedEvent announces the outcome; Connect
	// itself never blocks on the network.
	Connect(transport Transport, peerAddr SocketAddr) error

	// SetDispatcher registers sink as the recipient of every NetworkEvent
	// the Bridge emits. Must be called before Start.
	SetDispatcher(sink EventSink)

	// Stop closes every open connection and stops accepting new ones. It
	// takes no grace period; Core.Quiesce does the waiting for queues to
	// drain before it calls Stop.
	Stop() error
}

// EventSink is the minimal surface the Bridge needs to deliver events
// into the dispatcher, avoiding a direct dependency on the actor runtime
// from this package (§9's "actor-ref-as-sink" design note).
type EventSink interface {
	// DeliverEvent hands one NetworkEvent to the dispatcher. The Bridge
	// calls this directly from whichever goroutine observed the event.
	// It does not wait for the event to be handled, but it can wait for
	// room in the dispatcher's mailbox.
	DeliverEvent(ev NetworkEvent)
}
