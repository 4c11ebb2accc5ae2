package networkbridge

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/meshactor/internal/dispatch"
)

// recordingSink is a dispatch.EventSink that records every event it
// receives, safe for concurrent delivery from the bridge's goroutines.
type recordingSink struct {
	mu     sync.Mutex
	events []dispatch.NetworkEvent
}

func (s *recordingSink) DeliverEvent(ev dispatch.NetworkEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) snapshot() []dispatch.NetworkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dispatch.NetworkEvent, len(s.events))
	copy(out, s.events)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// TestTCPBridge_ConnectAndExchangeFrame verifies that a Connect against a
// listening peer bridge results in Opened events on both sides, and that
// a Data frame written through the client's send channel is delivered to
// the server side as a ReceivedFrameEvent with the same payload.
func TestTCPBridge_ConnectAndExchangeFrame(t *testing.T) {
	serverSink := &recordingSink{}
	server := NewTCPBridge()
	server.SetDispatcher(serverSink)
	require.NoError(t, server.Start(dispatch.SocketAddr{IP: "127.0.0.1", Port: 0}))
	defer server.Stop()

	host, serverPort := splitHostPortForTest(t, server.listener.Addr().String())

	clientSink := &recordingSink{}
	client := NewTCPBridge()
	client.SetDispatcher(clientSink)
	require.NoError(t, client.Start(dispatch.SocketAddr{IP: "127.0.0.1", Port: 0}))
	defer client.Stop()

	peer := dispatch.SocketAddr{IP: host, Port: serverPort}
	require.NoError(t, client.Connect(dispatch.TransportTCP, peer))

	var clientTx dispatch.SendChannel
	waitFor(t, 2*time.Second, func() bool {
		for _, ev := range clientSink.snapshot() {
			if opened, ok := ev.(dispatch.OpenedEvent); ok {
				clientTx = opened.Tx
				return true
			}
		}
		return false
	})
	require.NotNil(t, clientTx)

	waitFor(t, 2*time.Second, func() bool {
		for _, ev := range serverSink.snapshot() {
			if _, ok := ev.(dispatch.OpenedEvent); ok {
				return true
			}
		}
		return false
	})

	result := clientTx.TrySend(dispatch.DataFrame{Payload: []byte("hello-over-the-wire")})
	require.Equal(t, dispatch.TrySendOk, result)

	waitFor(t, 2*time.Second, func() bool {
		for _, ev := range serverSink.snapshot() {
			if rf, ok := ev.(dispatch.ReceivedFrameEvent); ok {
				df, ok := rf.Frame.(dispatch.DataFrame)
				return ok && string(df.Payload) == "hello-over-the-wire"
			}
		}
		return false
	})
}

// TestTCPBridge_ConnectRefusedReportsFailure verifies that connecting to
// a port nothing is listening on surfaces a ConnectFailedEvent rather
// than hanging or panicking.
func TestTCPBridge_ConnectRefusedReportsFailure(t *testing.T) {
	sink := &recordingSink{}
	client := NewTCPBridge()
	client.SetDispatcher(sink)
	require.NoError(t, client.Start(dispatch.SocketAddr{IP: "127.0.0.1", Port: 0}))
	defer client.Stop()

	peer := dispatch.SocketAddr{IP: "127.0.0.1", Port: 1}
	require.NoError(t, client.Connect(dispatch.TransportTCP, peer))

	waitFor(t, 2*time.Second, func() bool {
		for _, ev := range sink.snapshot() {
			if _, ok := ev.(dispatch.ConnectFailedEvent); ok {
				return true
			}
		}
		return false
	})
}

// TestTCPBridge_StopClosesConnections verifies Stop tears down an
// established connection, reporting it closed to the dispatcher.
func TestTCPBridge_StopClosesConnections(t *testing.T) {
	serverSink := &recordingSink{}
	server := NewTCPBridge()
	server.SetDispatcher(serverSink)
	require.NoError(t, server.Start(dispatch.SocketAddr{IP: "127.0.0.1", Port: 0}))

	host, port := splitHostPortForTest(t, server.listener.Addr().String())

	clientSink := &recordingSink{}
	client := NewTCPBridge()
	client.SetDispatcher(clientSink)
	require.NoError(t, client.Start(dispatch.SocketAddr{IP: "127.0.0.1", Port: 0}))

	require.NoError(t, client.Connect(dispatch.TransportTCP,
		dispatch.SocketAddr{IP: host, Port: port}))

	waitFor(t, 2*time.Second, func() bool {
		for _, ev := range serverSink.snapshot() {
			if _, ok := ev.(dispatch.OpenedEvent); ok {
				return true
			}
		}
		return false
	})

	require.NoError(t, client.Stop())
	waitFor(t, 2*time.Second, func() bool {
		for _, ev := range clientSink.snapshot() {
			if _, ok := ev.(dispatch.ClosedEvent); ok {
				return true
			}
		}
		return false
	})
	require.NoError(t, server.Stop())
}

func splitHostPortForTest(t *testing.T, addr string) (string, uint16) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, uint16(port)
}
