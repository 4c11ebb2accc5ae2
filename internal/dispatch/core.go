package dispatch

import (
	"context"
	"net"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/meshactor/internal/baselib/actor"
)

// DispatchResult is the response type every DispatchEnvelope completes
// with. The dispatcher's operations are all fire-and-forget from a
// caller's perspective (routing decisions surface via observability
// events, not Ask responses), so this is an empty struct; Core is still
// addressed via Ask as well as Tell so synchronous callers (tests, the
// admin surface) can block until an envelope has been processed.
type DispatchResult struct{}

// Core is the Dispatcher Core (§2, §4.5): it owns the Address Registry,
// Connection Table, and Queue Manager exclusively, and is the only
// component that mutates them. It is driven by the actor runtime as an
// ordinary ActorBehavior, which gives it the single-threaded receive loop
// §5 requires without any locking inside Core itself.
type Core struct {
	cfg Config

	localSys System

	registry *Registry
	conns    *ConnectionTable
	queues   *QueueManager

	bridge  Bridge
	started bool

	counters Counters
	obs      ObservabilitySink

	self actor.ActorRef[DispatchEnvelope, DispatchResult]
}

// NewCore builds an inert Dispatcher Core: the Address Registry exists
// immediately (registrations may precede Start), but the Connection
// Table, Queue Manager, and Bridge wiring happen only once Activate is
// called, matching the Lifecycle note in §3.
func NewCore(cfg Config, bridge Bridge, obs ObservabilitySink) *Core {
	if obs == nil {
		obs = NewMultiSink()
	}

	return &Core{
		cfg: cfg,
		localSys: System{Path: SystemPath{
			Transport: TransportLocal,
			IP:        net.ParseIP(cfg.BindAddr.IP),
			Port:      cfg.BindAddr.Port,
		}},
		registry: NewRegistry(),
		bridge:   bridge,
		obs:      obs,
	}
}

// BindSelf records the ActorRef the actor runtime assigned Core once
// spawned, so Core can route self-sends (e.g. forwarding Bridge events
// from DeliverEvent into its own mailbox).
func (c *Core) BindSelf(self actor.ActorRef[DispatchEnvelope, DispatchResult]) {
	c.self = self
}

// Activate implements the Start control event (§3 Lifecycle, §4.5): it
// instantiates the Queue Manager and Connection Table, then starts the
// Network Bridge listening on the configured bind address and registers
// Core as the Bridge's event sink.
func (c *Core) Activate(ctx context.Context) error {
	c.queues = NewQueueManager()
	c.conns = NewConnectionTable()

	c.bridge.SetDispatcher(c)

	if err := c.bridge.Start(c.cfg.BindAddr); err != nil {
		return err
	}

	c.started = true

	log.InfoS(ctx, "Dispatcher core activated", "bind_addr", c.cfg.BindAddr.String())

	return nil
}

// Quiesce implements the Stop control event: it waits up to the
// configured grace period for per-peer queues to empty, then stops the
// Bridge. It does not reject outbound messages: messages routed while it
// waits are still handled as usual.
func (c *Core) Quiesce(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.StopGrace)

	for c.anyQueueNonEmpty() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	return c.bridge.Stop()
}

// Terminate implements the Kill control event: it closes the Bridge
// immediately, dropping any pending frames without waiting for a drain.
func (c *Core) Terminate() error {
	return c.bridge.Stop()
}

func (c *Core) anyQueueNonEmpty() bool {
	if c.conns == nil {
		return false
	}
	for _, peer := range c.conns.Peers() {
		if c.queues.Len(peer) > 0 {
			return true
		}
	}
	return false
}

// Receive implements actor.ActorBehavior. It is the sole place
// DispatchEnvelope variants are handled, and it is only ever invoked
// sequentially by the actor runtime's mailbox loop.
func (c *Core) Receive(
	ctx context.Context, env DispatchEnvelope) fn.Result[DispatchResult] {

	switch e := env.(type) {
	case MessageEnvelope:
		c.route(ctx, e)

	case RegisterEnvelope:
		c.handleRegister(ctx, e)

	case DeregisterEnvelope:
		c.handleDeregister(ctx, e)

	case NetworkEventEnvelope:
		c.handleNetworkEvent(ctx, e.Event)

	case CastEnvelope:
		log.WarnS(ctx, "Dispatcher core received reserved Cast envelope",
			ErrProtocolViolation)
		c.obs.Observe(ProtocolViolationEvent{Detail: "received Cast envelope"})

	default:
		log.WarnS(ctx, "Dispatcher core received unknown envelope type",
			ErrProtocolViolation)
	}

	return fn.Ok(DispatchResult{})
}

// DeliverEvent implements EventSink. It's called directly by the Bridge,
// from whichever goroutine observed the event, so it forwards into Core's
// own mailbox rather than touching Core's state from the wrong goroutine.
func (c *Core) DeliverEvent(ev NetworkEvent) {
	if c.self == nil {
		return
	}
	c.self.Tell(context.Background(), NetworkEventEnvelope{Event: ev})
}

func (c *Core) handleRegister(ctx context.Context, e RegisterEnvelope) {
	_, err := c.registry.Insert(e.Path, e.Sink)
	if err != nil {
		log.DebugS(ctx, "Registration rejected", "path", e.Path, "err", err)
		c.obs.Observe(DuplicatePathEvent{Path: e.Path})
	}
}

func (c *Core) handleDeregister(ctx context.Context, e DeregisterEnvelope) {
	// Deregister has no effect on queues: queued frames are addressed by
	// peer, not by local actor (§4.5, §9 open question).
	c.registry.Remove(e.Path)
}

// route implements §4.2's core operation.
func (c *Core) route(ctx context.Context, env MessageEnvelope) {
	switch env.Dst.System().Path.Transport {
	case TransportLocal:
		c.routeLocal(ctx, env)

	case TransportTCP:
		c.routeRemote(ctx, env)

	case TransportUDP:
		log.ErrorS(ctx, "UDP routing not supported", ErrUnsupportedTransport)
		c.deadletter(env, ErrUnsupportedTransport)

	default:
		c.deadletter(env, ErrUnsupportedTransport)
	}
}

func (c *Core) routeLocal(ctx context.Context, env MessageEnvelope) {
	handle, ok := c.registry.Lookup(env.Dst)
	if !ok {
		c.deadletter(env, ErrUnresolvedLocal)
		return
	}

	srcPath, err := env.Src.Resolve(c.localSys, c.registry)
	if err != nil {
		c.deadletter(env, err)
		return
	}

	sink, ok := c.registry.SinkFor(handle)
	if !ok {
		c.deadletter(env, ErrUnresolvedLocal)
		return
	}

	sink.Deliver(ReceivedEnvelope{
		Src:     srcPath,
		Dst:     env.Dst,
		Payload: env.Payload,
	})
}

func (c *Core) routeRemote(ctx context.Context, env MessageEnvelope) {
	if !c.started {
		c.deadletter(env, ErrNoBridge)
		return
	}

	peer := peerAddr(env.Dst)
	frame := c.buildFrame(env)

	state := c.conns.Get(peer)

	switch st := state.(type) {
	case StateNew, StateClosed:
		c.queues.Enqueue(peer, frame)
		c.counters.FramesQueued.Add(1)

		if err := c.bridge.Connect(TransportTCP, peer); err != nil {
			log.WarnS(ctx, "Bridge connect failed", err, "peer", peer.String())
			c.deadletter(env, ErrNoBridge)
			c.conns.Set(peer, StateClosed{})
			return
		}

		c.conns.Set(peer, StateInitializing{Since: time.Now()})

	case StateInitializing:
		c.queues.Enqueue(peer, frame)
		c.counters.FramesQueued.Add(1)

	case StateConnected:
		if c.queues.Len(peer) > 0 {
			// A direct send would overtake queued frames: queue behind
			// them and drain in order instead.
			c.queues.Enqueue(peer, frame)
			c.counters.FramesQueued.Add(1)
			c.queues.DrainInto(peer, st.Tx)
			break
		}

		switch st.Tx.TrySend(frame) {
		case TrySendOk:
			c.counters.FramesSentDirect.Add(1)

		case TrySendFull:
			c.queues.Enqueue(peer, frame)
			c.counters.FramesQueued.Add(1)

		case TrySendDisconnected:
			c.queues.EnqueueFront(peer, frame)
			c.counters.FramesQueued.Add(1)
			c.conns.Set(peer, StateClosed{})

			if err := c.bridge.Connect(TransportTCP, peer); err != nil {
				log.WarnS(ctx, "Bridge reconnect failed", err,
					"peer", peer.String())
			}
		}

	case StateBlocked:
		c.queues.Enqueue(peer, frame)
		for _, dropped := range c.queues.TrimOverflow(peer, c.cfg.MaxPendingFramesPerPeer) {
			c.counters.FramesDeadlettered.Add(1)
			c.obs.Observe(QueueOverflowEvent{Peer: peer, Frame: dropped})
		}

	default:
		c.deadletter(env, ErrProtocolViolation)
	}

	for _, dropped := range c.queues.TrimOverflow(peer, c.cfg.MaxPendingFramesPerPeer) {
		c.counters.FramesDeadlettered.Add(1)
		c.obs.Observe(QueueOverflowEvent{Peer: peer, Frame: dropped})
	}
}

func (c *Core) handleNetworkEvent(ctx context.Context, ev NetworkEvent) {
	switch e := ev.(type) {
	case OpenedEvent:
		c.conns.Set(e.Peer, StateConnected{Tx: e.Tx})
		c.counters.ConnectionsOpened.Add(1)
		drained := c.queues.DrainInto(e.Peer, e.Tx)
		log.DebugS(ctx, "Drained queue into new connection",
			"peer", e.Peer.String(), "count", drained)

	case ClosedEvent:
		c.conns.Set(e.Peer, StateClosed{})
		c.counters.ConnectionsClosed.Add(1)

		if c.queues.Len(e.Peer) > 0 {
			if err := c.bridge.Connect(TransportTCP, e.Peer); err != nil {
				n := c.queues.DropPeer(e.Peer)
				c.counters.FramesDeadlettered.Add(uint64(n))
			}
		}

	case ConnectFailedEvent:
		if e.Permanent {
			c.conns.Set(e.Peer, StateBlocked{Reason: e.Reason})
			n := c.queues.DropPeer(e.Peer)
			c.counters.FramesDeadlettered.Add(uint64(n))
		} else {
			c.conns.Set(e.Peer, StateClosed{})
		}

	case ReceivedFrameEvent:
		c.handleReceivedFrame(ctx, e)

	default:
		log.WarnS(ctx, "Unknown network event type", ErrProtocolViolation)
	}
}

func (c *Core) handleReceivedFrame(ctx context.Context, e ReceivedFrameEvent) {
	data, ok := e.Frame.(DataFrame)
	if !ok {
		// Hello/Bye/Ack frames are the Bridge's own bookkeeping; the
		// dispatcher treats them opaquely (§3).
		return
	}

	_, src, dst, payload, err := DecodeEnvelopeHeader(data.Payload)
	if err != nil {
		log.WarnS(ctx, "Malformed inbound frame header", err, "peer", e.Peer.String())
		c.obs.Observe(ProtocolViolationEvent{Detail: "malformed frame header"})
		return
	}

	handle, ok := c.registry.Lookup(dst)
	if !ok {
		c.obs.Observe(DeadletterEvent{
			Envelope: MessageEnvelope{Dst: dst},
			Reason:   ErrUnresolvedLocal,
		})
		return
	}

	sink, ok := c.registry.SinkFor(handle)
	if !ok {
		return
	}

	sink.Deliver(ReceivedEnvelope{
		Src:     src,
		Dst:     dst,
		Payload: rawPayload(payload),
	})
}

func (c *Core) buildFrame(env MessageEnvelope) DataFrame {
	srcPath, _ := env.Src.Resolve(c.localSys, c.registry)

	var buf []byte
	if hint, ok := env.Payload.SizeHint(); ok {
		buf = make([]byte, 0, hint)
	}
	userPayload := env.Payload.SerializeInto(buf)

	header := EncodeEnvelopeHeader(
		env.Payload.SerializerID(), srcPath, env.Dst, userPayload,
	)

	return DataFrame{
		StreamID: streamID(env.Dst),
		Payload:  header,
	}
}

func (c *Core) deadletter(env MessageEnvelope, reason error) {
	c.counters.FramesDeadlettered.Add(1)
	c.obs.Observe(DeadletterEvent{Envelope: env, Reason: reason})
}

func peerAddr(dst ActorPath) SocketAddr {
	sys := dst.System().Path
	return SocketAddr{IP: sys.IP.String(), Port: sys.Port}
}

// rawPayload adapts an already-serialized byte slice back into the
// Serializable contract for local delivery of a frame decoded off the
// wire; its SerializerID is unused by receivers that only care about the
// raw bytes already extracted from the frame.
type rawPayload []byte

func (p rawPayload) SizeHint() (int, bool)           { return len(p), true }
func (p rawPayload) SerializeInto(buf []byte) []byte { return append(buf, p...) }
func (p rawPayload) SerializerID() uint64            { return 0 }

// Counters returns a snapshot of the dispatcher's observable counters.
func (c *Core) Counters() Snapshot {
	return c.counters.Snapshot()
}

// Peers returns every peer currently tracked in the Connection Table, for
// admin introspection.
func (c *Core) Peers() []SocketAddr {
	if c.conns == nil {
		return nil
	}
	return c.conns.Peers()
}

// QueueDepth returns the current pending-frame count for peer.
func (c *Core) QueueDepth(peer SocketAddr) int {
	if c.queues == nil {
		return 0
	}
	return c.queues.Len(peer)
}

// OnStop implements actor.Stoppable, so the actor runtime's own shutdown
// path drives the same grace-period drain as an explicit Quiesce call.
func (c *Core) OnStop(ctx context.Context) error {
	if !c.started {
		return nil
	}
	return c.Quiesce(ctx)
}
