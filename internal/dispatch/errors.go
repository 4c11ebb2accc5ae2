package dispatch

import "errors"

var (
	// ErrUnresolvedLocal is returned when a named or unique path has no
	// local binding in the Address Registry. Policy: deadletter.
	ErrUnresolvedLocal = errors.New("unresolved local actor path")

	// ErrUnsupportedTransport is returned for routing attempts over a
	// transport the dispatcher doesn't implement (currently UDP).
	ErrUnsupportedTransport = errors.New("unsupported transport")

	// ErrConnectFailedTransient indicates a connection attempt failed in
	// a way that's worth retrying (e.g. a transient network error).
	ErrConnectFailedTransient = errors.New("connect failed, transient")

	// ErrConnectFailedPermanent indicates a connection attempt failed in
	// a way that should not be retried (e.g. connection refused).
	ErrConnectFailedPermanent = errors.New("connect failed, permanent")

	// ErrChannelDisconnected indicates the send channel to a peer was
	// dropped out from under the dispatcher, signaling peer loss.
	ErrChannelDisconnected = errors.New("send channel disconnected")

	// ErrQueueOverflow indicates a per-peer pending queue exceeded its
	// configured capacity; the oldest frame was deadlettered.
	ErrQueueOverflow = errors.New("per-peer queue overflow")

	// ErrProtocolViolation indicates a Cast envelope or a malformed
	// inbound frame header.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrDuplicatePath indicates a registration attempt collided with an
	// existing named-path registration. The existing registration is
	// retained.
	ErrDuplicatePath = errors.New("duplicate path registration")

	// ErrNoBridge indicates a remote route was attempted before the
	// Network Bridge was started (i.e. before the Start control event).
	ErrNoBridge = errors.New("network bridge not started")

	// ErrMalformedFrame indicates an inbound Data frame's header could
	// not be parsed per the wire format in the external interfaces.
	ErrMalformedFrame = errors.New("malformed frame header")
)
