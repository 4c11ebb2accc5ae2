package dispatch

import "github.com/roasbeef/meshactor/internal/baselib/actor"

// Serializable is the collaborator contract a payload must satisfy before
// the dispatcher can turn it into a Data frame (§6). Implementations
// typically wrap an already-serialized buffer, or defer to a codec
// registered elsewhere in the actor system.
type Serializable interface {
	// SizeHint returns an estimate of the serialized size, or (0, false)
	// if unknown.
	SizeHint() (int, bool)

	// SerializeInto appends the serialized form of this value to buf,
	// returning the extended slice.
	SerializeInto(buf []byte) []byte

	// SerializerID identifies which deserializer the receiver should use.
	SerializerID() uint64
}

// DispatchEnvelope is the sum type consumed by the Dispatcher Core on
// every inbound turn of its receive loop (§3, §4.5). It is also an
// actor.Message, since the Dispatcher Core runs as an ordinary
// actor.ActorBehavior and relies on the actor runtime's mailbox for the
// single-threaded delivery §5 requires. Sealed by the unexported
// dispatchEnvelopeMarker method; CastEnvelope is the only variant that's
// illegal to receive (§7) and exists purely so the core can recognize and
// reject it.
type DispatchEnvelope interface {
	actor.Message
	dispatchEnvelopeMarker()
}

// MessageEnvelope carries a user message destined for either a local or
// remote actor.
type MessageEnvelope struct {
	actor.BaseMessage

	Src     PathResolvable
	Dst     ActorPath
	Payload Serializable
}

func (MessageEnvelope) dispatchEnvelopeMarker() {}
func (MessageEnvelope) MessageType() string     { return "dispatch.Message" }

// RegisterEnvelope registers a local actor's sink under a path.
type RegisterEnvelope struct {
	actor.BaseMessage

	Handle LocalHandle
	Path   ActorPath
	Sink   Sink
}

func (RegisterEnvelope) dispatchEnvelopeMarker() {}
func (RegisterEnvelope) MessageType() string     { return "dispatch.Register" }

// DeregisterEnvelope removes a local actor's registration.
type DeregisterEnvelope struct {
	actor.BaseMessage

	Path ActorPath
}

func (DeregisterEnvelope) dispatchEnvelopeMarker() {}
func (DeregisterEnvelope) MessageType() string     { return "dispatch.Deregister" }

// NetworkEventEnvelope wraps an inbound event from the Network Bridge.
type NetworkEventEnvelope struct {
	actor.BaseMessage

	Event NetworkEvent
}

func (NetworkEventEnvelope) dispatchEnvelopeMarker() {}
func (NetworkEventEnvelope) MessageType() string     { return "dispatch.NetworkEvent" }

// CastEnvelope is reserved and illegal to receive; any occurrence is a
// protocol violation (§7).
type CastEnvelope struct {
	actor.BaseMessage
}

func (CastEnvelope) dispatchEnvelopeMarker() {}
func (CastEnvelope) MessageType() string     { return "dispatch.Cast" }

// ReceivedEnvelope is what a local actor's mailbox actually receives once
// the dispatcher has resolved a destination, whether the message arrived
// locally or over the network.
type ReceivedEnvelope struct {
	Src     ActorPath
	Dst     ActorPath
	Payload Serializable
}

// NetworkEvent is the sum type the Network Bridge emits into the
// dispatcher (§4.4). Sealed by the unexported networkEventMarker method.
type NetworkEvent interface {
	networkEventMarker()
}

// OpenedEvent announces that a connection to peer is ready to accept
// frames via tx.
type OpenedEvent struct {
	Peer SocketAddr
	Tx   SendChannel
}

func (OpenedEvent) networkEventMarker() {}

// ClosedEvent announces that a previously open connection to peer has
// gone away.
type ClosedEvent struct {
	Peer   SocketAddr
	Reason string
}

func (ClosedEvent) networkEventMarker() {}

// ReceivedFrameEvent announces an inbound frame from peer.
type ReceivedFrameEvent struct {
	Peer  SocketAddr
	Frame Frame
}

func (ReceivedFrameEvent) networkEventMarker() {}

// ConnectFailedEvent announces that a connect() request failed. Permanent
// indicates the failure is not worth retrying (e.g. connection refused);
// otherwise the failure is treated as transient.
type ConnectFailedEvent struct {
	Peer      SocketAddr
	Reason    string
	Permanent bool
}

func (ConnectFailedEvent) networkEventMarker() {}
