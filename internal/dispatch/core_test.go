package dispatch

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// fakeBridge is a Bridge whose Connect calls are recorded rather than
// acted on; OpenedEvent/ClosedEvent/ConnectFailedEvent are injected
// directly by tests via Core.Receive(NetworkEventEnvelope{...}).
type fakeBridge struct {
	connectCalls []SocketAddr
	connectErr   error
	started      bool
	stopped      bool
}

func (b *fakeBridge) Start(bindAddr SocketAddr) error { b.started = true; return nil }

func (b *fakeBridge) Connect(transport Transport, peerAddr SocketAddr) error {
	b.connectCalls = append(b.connectCalls, peerAddr)
	return b.connectErr
}

func (b *fakeBridge) SetDispatcher(sink EventSink) {}

func (b *fakeBridge) Stop() error { b.stopped = true; return nil }

// fakeTx is a SendChannel whose TrySend behavior is scripted ahead of
// time, recording every frame it accepts.
type fakeTx struct {
	script   []TrySendResult
	accepted []Frame
}

func (t *fakeTx) TrySend(frame Frame) TrySendResult {
	if len(t.script) == 0 {
		return TrySendFull
	}
	result := t.script[0]
	t.script = t.script[1:]
	if result == TrySendOk {
		t.accepted = append(t.accepted, frame)
	}
	return result
}

func acceptAll(n int) []TrySendResult {
	out := make([]TrySendResult, n)
	for i := range out {
		out[i] = TrySendOk
	}
	return out
}

// fakeObsSink records every ObservabilityEvent handed to it.
type fakeObsSink struct {
	events []ObservabilityEvent
}

func (s *fakeObsSink) Observe(ev ObservabilityEvent) {
	s.events = append(s.events, ev)
}

type fakePayload struct {
	data []byte
}

func (p fakePayload) SizeHint() (int, bool)           { return len(p.data), true }
func (p fakePayload) SerializeInto(buf []byte) []byte { return append(buf, p.data...) }
func (p fakePayload) SerializerID() uint64             { return 7 }

func framePayload(t *testing.T, f Frame) []byte {
	t.Helper()
	df, ok := f.(DataFrame)
	require.True(t, ok)
	_, _, _, payload, err := DecodeEnvelopeHeader(df.Payload)
	require.NoError(t, err)
	return payload
}

func newTestCore(t *testing.T, bridge Bridge, obs ObservabilitySink) *Core {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxPendingFramesPerPeer = 1024
	core := NewCore(cfg, bridge, obs)
	require.NoError(t, core.Activate(context.Background()))
	return core
}

func remotePath(ip string, port uint16, segs ...string) ActorPath {
	sys := System{Path: SystemPath{
		Transport: TransportTCP, IP: net.ParseIP(ip), Port: port,
	}}
	return NewNamedPath(sys, NamedPath(segs))
}

// TestScenario_LocalHit is spec scenario 1: routing to a registered named
// path delivers directly to the registered sink, with no network I/O.
func TestScenario_LocalHit(t *testing.T) {
	bridge := &fakeBridge{}
	core := newTestCore(t, bridge, &fakeObsSink{})

	dst := NewNamedPath(core.localSys, NamedPath{"foo", "bar"})
	sink := &fakeSink{}
	_, err := core.registry.Insert(dst, sink)
	require.NoError(t, err)

	srcPath := NewNamedPath(core.localSys, NamedPath{"self"})
	env := MessageEnvelope{
		Src:     ResolvedPath{Path: srcPath},
		Dst:     dst,
		Payload: fakePayload{data: []byte("hello")},
	}

	core.Receive(context.Background(), env)

	require.Len(t, sink.delivered, 1)
	require.True(t, sink.delivered[0].Src.Equal(srcPath))
	require.True(t, sink.delivered[0].Dst.Equal(dst))
	require.Empty(t, bridge.connectCalls)
}

// TestScenario_LocalMiss is spec scenario 2: routing to an unregistered
// named path produces exactly one deadletter event and leaves the
// registry untouched.
func TestScenario_LocalMiss(t *testing.T) {
	bridge := &fakeBridge{}
	obs := &fakeObsSink{}
	core := newTestCore(t, bridge, obs)

	dst := NewNamedPath(core.localSys, NamedPath{"foo", "baz"})
	env := MessageEnvelope{
		Src:     ResolvedPath{Path: dst},
		Dst:     dst,
		Payload: fakePayload{data: []byte("x")},
	}

	core.Receive(context.Background(), env)

	require.Len(t, obs.events, 1)
	dl, ok := obs.events[0].(DeadletterEvent)
	require.True(t, ok)
	require.True(t, dl.Envelope.Dst.Equal(dst))

	_, ok = core.registry.Lookup(dst)
	require.False(t, ok)
}

// TestScenario_ColdStartRemote is spec scenario 3: three messages routed
// to a never-seen peer queue up in order, trigger exactly one connect
// call, transition to Initializing, and drain to the send channel in
// order once Opened arrives.
func TestScenario_ColdStartRemote(t *testing.T) {
	bridge := &fakeBridge{}
	core := newTestCore(t, bridge, &fakeObsSink{})

	peer := SocketAddr{IP: "10.0.0.2", Port: 9000}
	dst := remotePath("10.0.0.2", 9000, "actor")
	ctx := context.Background()

	for _, m := range []string{"m1", "m2", "m3"} {
		env := MessageEnvelope{
			Src:     ResolvedPath{Path: dst},
			Dst:     dst,
			Payload: fakePayload{data: []byte(m)},
		}
		core.Receive(ctx, env)
	}

	_, isInitializing := core.conns.Get(peer).(StateInitializing)
	require.True(t, isInitializing)
	require.Equal(t, 3, core.queues.Len(peer))
	require.Equal(t, []SocketAddr{peer}, bridge.connectCalls)

	tx := &fakeTx{script: acceptAll(3)}
	core.Receive(ctx, NetworkEventEnvelope{Event: OpenedEvent{Peer: peer, Tx: tx}})

	require.Len(t, tx.accepted, 3)
	require.Equal(t, []byte("m1"), framePayload(t, tx.accepted[0]))
	require.Equal(t, []byte("m2"), framePayload(t, tx.accepted[1]))
	require.Equal(t, []byte("m3"), framePayload(t, tx.accepted[2]))

	_, isConnected := core.conns.Get(peer).(StateConnected)
	require.True(t, isConnected)
	require.Equal(t, 0, core.queues.Len(peer))
}

// TestScenario_FullChannel is spec scenario 4: with a connected but
// momentarily-full channel, the first message is sent directly and the
// rest queue in order; a later drain opportunity delivers the queue head
// first.
func TestScenario_FullChannel(t *testing.T) {
	bridge := &fakeBridge{}
	core := newTestCore(t, bridge, &fakeObsSink{})

	peer := SocketAddr{IP: "10.0.0.3", Port: 9100}
	dst := remotePath("10.0.0.3", 9100, "actor")
	ctx := context.Background()

	tx := &fakeTx{script: []TrySendResult{TrySendOk, TrySendFull, TrySendFull, TrySendFull}}
	core.conns.Set(peer, StateConnected{Tx: tx})

	for _, m := range []string{"m1", "m2", "m3", "m4"} {
		env := MessageEnvelope{
			Src:     ResolvedPath{Path: dst},
			Dst:     dst,
			Payload: fakePayload{data: []byte(m)},
		}
		core.Receive(ctx, env)
	}

	require.Len(t, tx.accepted, 1)
	require.Equal(t, []byte("m1"), framePayload(t, tx.accepted[0]))
	require.Equal(t, 3, core.queues.Len(peer))

	drainTx := &fakeTx{script: acceptAll(3)}
	drained := core.queues.DrainInto(peer, drainTx)
	require.Equal(t, 3, drained)
	require.Equal(t, []byte("m2"), framePayload(t, drainTx.accepted[0]))
	require.Equal(t, []byte("m3"), framePayload(t, drainTx.accepted[1]))
	require.Equal(t, []byte("m4"), framePayload(t, drainTx.accepted[2]))
}

// TestScenario_DisconnectMidSend is spec scenario 5: a Disconnected
// try_send result requeues the frame at the head of the peer's queue,
// transitions the connection to Closed, and requests a reconnect.
func TestScenario_DisconnectMidSend(t *testing.T) {
	bridge := &fakeBridge{}
	core := newTestCore(t, bridge, &fakeObsSink{})

	peer := SocketAddr{IP: "10.0.0.4", Port: 9200}
	dst := remotePath("10.0.0.4", 9200, "actor")
	ctx := context.Background()

	tx := &fakeTx{script: []TrySendResult{TrySendDisconnected}}
	core.conns.Set(peer, StateConnected{Tx: tx})

	env := MessageEnvelope{
		Src:     ResolvedPath{Path: dst},
		Dst:     dst,
		Payload: fakePayload{data: []byte("m1")},
	}
	core.Receive(ctx, env)

	require.Equal(t, 1, core.queues.Len(peer))
	_, isClosed := core.conns.Get(peer).(StateClosed)
	require.True(t, isClosed)
	require.Equal(t, []SocketAddr{peer}, bridge.connectCalls)

	drainTx := &fakeTx{script: acceptAll(1)}
	core.queues.DrainInto(peer, drainTx)
	require.Equal(t, []byte("m1"), framePayload(t, drainTx.accepted[0]))
}

// TestScenario_Overflow is spec scenario 6: with a two-frame cap, routing
// three messages to an Initializing peer drops the oldest and emits one
// QueueOverflow event carrying it.
func TestScenario_Overflow(t *testing.T) {
	bridge := &fakeBridge{}
	obs := &fakeObsSink{}
	cfg := DefaultConfig()
	cfg.MaxPendingFramesPerPeer = 2
	core := NewCore(cfg, bridge, obs)
	require.NoError(t, core.Activate(context.Background()))

	peer := SocketAddr{IP: "10.0.0.5", Port: 9300}
	dst := remotePath("10.0.0.5", 9300, "actor")
	ctx := context.Background()

	core.conns.Set(peer, StateInitializing{})

	for _, m := range []string{"m1", "m2", "m3"} {
		env := MessageEnvelope{
			Src:     ResolvedPath{Path: dst},
			Dst:     dst,
			Payload: fakePayload{data: []byte(m)},
		}
		core.Receive(ctx, env)
	}

	require.Equal(t, 2, core.queues.Len(peer))

	var overflow []QueueOverflowEvent
	for _, ev := range obs.events {
		if qo, ok := ev.(QueueOverflowEvent); ok {
			overflow = append(overflow, qo)
		}
	}
	require.Len(t, overflow, 1)
	require.Equal(t, []byte("m1"), framePayload(t, overflow[0].Frame))

	drainTx := &fakeTx{script: acceptAll(2)}
	core.queues.DrainInto(peer, drainTx)
	require.Equal(t, []byte("m2"), framePayload(t, drainTx.accepted[0]))
	require.Equal(t, []byte("m3"), framePayload(t, drainTx.accepted[1]))
}

// TestProperty_NoLossWithoutEvent is P3: after any sequence of routed
// remote messages against an Initializing peer that never connects, every
// message is accounted for either in the queue or as a deadletter/
// overflow event — nothing simply vanishes.
func TestProperty_NoLossWithoutEvent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		bridge := &fakeBridge{}
		obs := &fakeObsSink{}
		cfg := DefaultConfig()
		cfg.MaxPendingFramesPerPeer = rapid.IntRange(1, 5).Draw(rt, "cap")
		core := NewCore(cfg, bridge, obs)
		require.NoError(t, core.Activate(context.Background()))

		peer := SocketAddr{IP: "10.0.0.6", Port: 9400}
		dst := remotePath("10.0.0.6", 9400, "actor")
		core.conns.Set(peer, StateInitializing{})

		n := rapid.IntRange(0, 30).Draw(rt, "numMsgs")
		for i := 0; i < n; i++ {
			env := MessageEnvelope{
				Src:     ResolvedPath{Path: dst},
				Dst:     dst,
				Payload: fakePayload{data: []byte{byte(i)}},
			}
			core.Receive(context.Background(), env)
		}

		overflowCount := 0
		for _, ev := range obs.events {
			if _, ok := ev.(QueueOverflowEvent); ok {
				overflowCount++
			}
		}

		require.Equal(t, n, core.queues.Len(peer)+overflowCount)
	})
}

// TestProperty_DrainBeforeDirect is P4: after Opened, a non-empty queue
// drains to the channel before any subsequently routed message, even
// when the newly-routed message arrives in the same Connected state.
func TestProperty_DrainBeforeDirect(t *testing.T) {
	bridge := &fakeBridge{}
	core := newTestCore(t, bridge, &fakeObsSink{})

	peer := SocketAddr{IP: "10.0.0.7", Port: 9500}
	dst := remotePath("10.0.0.7", 9500, "actor")
	ctx := context.Background()

	core.conns.Set(peer, StateInitializing{})
	core.Receive(ctx, MessageEnvelope{
		Src: ResolvedPath{Path: dst}, Dst: dst,
		Payload: fakePayload{data: []byte("queued")},
	})
	require.Equal(t, 1, core.queues.Len(peer))

	tx := &fakeTx{script: acceptAll(2)}
	core.Receive(ctx, NetworkEventEnvelope{Event: OpenedEvent{Peer: peer, Tx: tx}})
	require.Len(t, tx.accepted, 1)
	require.Equal(t, []byte("queued"), framePayload(t, tx.accepted[0]))

	core.Receive(ctx, MessageEnvelope{
		Src: ResolvedPath{Path: dst}, Dst: dst,
		Payload: fakePayload{data: []byte("direct")},
	})
	require.Len(t, tx.accepted, 2)
	require.Equal(t, []byte("direct"), framePayload(t, tx.accepted[1]))
}

// TestCastEnvelope_IsProtocolViolation verifies that receiving the
// reserved Cast envelope is reported as a protocol violation rather than
// silently accepted.
func TestCastEnvelope_IsProtocolViolation(t *testing.T) {
	bridge := &fakeBridge{}
	obs := &fakeObsSink{}
	core := newTestCore(t, bridge, obs)

	core.Receive(context.Background(), CastEnvelope{})

	require.Len(t, obs.events, 1)
	_, ok := obs.events[0].(ProtocolViolationEvent)
	require.True(t, ok)
}

// TestRegisterDeregister_RoundTrip verifies Register makes a path routable
// and Deregister removes it again.
func TestRegisterDeregister_RoundTrip(t *testing.T) {
	bridge := &fakeBridge{}
	core := newTestCore(t, bridge, &fakeObsSink{})
	ctx := context.Background()

	path := NewNamedPath(core.localSys, NamedPath{"user", "a"})
	sink := &fakeSink{}

	core.Receive(ctx, RegisterEnvelope{Path: path, Sink: sink})
	_, ok := core.registry.Lookup(path)
	require.True(t, ok)

	core.Receive(ctx, DeregisterEnvelope{Path: path})
	_, ok = core.registry.Lookup(path)
	require.False(t, ok)
}
