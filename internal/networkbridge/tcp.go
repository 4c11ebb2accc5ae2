// Package networkbridge implements dispatch.Bridge over TCP: each frame on
// a connection is a 4-byte big-endian length prefix followed by a
// DataFrame's payload bytes, and each connection is serviced by its own
// goroutines. Other Frame variants, and a DataFrame's StreamID and Seq,
// are not written to the wire.
package networkbridge

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roasbeef/meshactor/internal/dispatch"
)

const maxFrameSize = 16 << 20 // 16MiB

// TCPBridge is the concrete dispatch.Bridge implementation over
// net.Listener / net.Dialer.
type TCPBridge struct {
	dispatcher dispatch.EventSink

	mu       sync.Mutex
	listener net.Listener
	conns    map[dispatch.SocketAddr]*tcpConn
	group    *errgroup.Group
	groupCtx context.Context
	cancel   context.CancelFunc
}

// NewTCPBridge builds an inert TCPBridge; Start must be called before any
// connection activity occurs.
func NewTCPBridge() *TCPBridge {
	return &TCPBridge{conns: make(map[dispatch.SocketAddr]*tcpConn)}
}

// SetDispatcher implements dispatch.Bridge.
func (b *TCPBridge) SetDispatcher(sink dispatch.EventSink) {
	b.dispatcher = sink
}

// Start implements dispatch.Bridge: it listens on bindAddr and accepts
// connections in a background goroutine tracked by the bridge's
// errgroup.Group.
func (b *TCPBridge) Start(bindAddr dispatch.SocketAddr) error {
	lis, err := net.Listen("tcp", bindAddr.String())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", bindAddr.String(), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)

	b.mu.Lock()
	b.listener = lis
	b.group = group
	b.groupCtx = groupCtx
	b.cancel = cancel
	b.mu.Unlock()

	group.Go(func() error {
		return b.acceptLoop(lis)
	})

	return nil
}

func (b *TCPBridge) acceptLoop(lis net.Listener) error {
	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-b.groupCtx.Done():
				return nil
			default:
				return err
			}
		}

		peer := peerFromNetAddr(conn.RemoteAddr())
		b.adopt(peer, conn)
	}
}

// Connect implements dispatch.Bridge. It dials peerAddr in the background
// and emits Opened or ConnectFailed once the outcome is known.
func (b *TCPBridge) Connect(transport dispatch.Transport, peerAddr dispatch.SocketAddr) error {
	if transport != dispatch.TransportTCP {
		return dispatch.ErrUnsupportedTransport
	}

	b.mu.Lock()
	group := b.group
	b.mu.Unlock()

	if group == nil {
		return dispatch.ErrNoBridge
	}

	group.Go(func() error {
		dialer := net.Dialer{Timeout: 5 * time.Second}
		conn, err := dialer.DialContext(b.groupCtx, "tcp", peerAddr.String())
		if err != nil {
			b.dispatcher.DeliverEvent(dispatch.ConnectFailedEvent{
				Peer:      peerAddr,
				Reason:    err.Error(),
				Permanent: isPermanentDialError(err),
			})
			return nil
		}

		b.adopt(peerAddr, conn)
		return nil
	})

	return nil
}

func (b *TCPBridge) adopt(peer dispatch.SocketAddr, nc net.Conn) {
	tc := newTCPConn(peer, nc)

	b.mu.Lock()
	b.conns[peer] = tc
	group := b.group
	b.mu.Unlock()

	b.dispatcher.DeliverEvent(dispatch.OpenedEvent{Peer: peer, Tx: tc})

	group.Go(func() error {
		reason := tc.readLoop(b.dispatcher)

		b.mu.Lock()
		delete(b.conns, peer)
		b.mu.Unlock()

		b.dispatcher.DeliverEvent(dispatch.ClosedEvent{Peer: peer, Reason: reason})
		return nil
	})

	group.Go(tc.writeLoop)
}

// Stop implements dispatch.Bridge: it stops accepting new connections and
// closes every open connection, then waits for all bridge goroutines to
// finish.
func (b *TCPBridge) Stop() error {
	b.mu.Lock()
	lis := b.listener
	cancel := b.cancel
	group := b.group
	conns := make([]*tcpConn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	// Cancel first so acceptLoop treats the listener closing as shutdown
	// rather than returning the close error.
	if cancel != nil {
		cancel()
	}
	if lis != nil {
		lis.Close()
	}
	for _, c := range conns {
		c.close()
	}
	if group != nil {
		return group.Wait()
	}
	return nil
}

func peerFromNetAddr(addr net.Addr) dispatch.SocketAddr {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return dispatch.SocketAddr{IP: addr.String()}
	}
	return dispatch.SocketAddr{IP: tcpAddr.IP.String(), Port: uint16(tcpAddr.Port)}
}

func isPermanentDialError(err error) bool {
	var opErr *net.OpError
	if ok := asOpError(err, &opErr); ok {
		return opErr.Op == "dial" && !opErr.Timeout()
	}
	return false
}

func asOpError(err error, target **net.OpError) bool {
	for err != nil {
		if opErr, ok := err.(*net.OpError); ok {
			*target = opErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// tcpConn wraps one accepted or dialed connection: a readLoop that
// decodes length-prefixed frames off the wire and forwards them to the
// dispatcher, and a bounded send channel serviced by writeLoop, satisfying
// dispatch.SendChannel via TrySend.
type tcpConn struct {
	peer dispatch.SocketAddr
	nc   net.Conn

	outbox chan dispatch.Frame

	closeOnce sync.Once
	closed    chan struct{}
}

func newTCPConn(peer dispatch.SocketAddr, nc net.Conn) *tcpConn {
	return &tcpConn{
		peer:   peer,
		nc:     nc,
		outbox: make(chan dispatch.Frame, 256),
		closed: make(chan struct{}),
	}
}

// TrySend implements dispatch.SendChannel.
func (c *tcpConn) TrySend(frame dispatch.Frame) dispatch.TrySendResult {
	select {
	case <-c.closed:
		return dispatch.TrySendDisconnected
	default:
	}

	select {
	case c.outbox <- frame:
		return dispatch.TrySendOk
	default:
		return dispatch.TrySendFull
	}
}

func (c *tcpConn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.nc.Close()
	})
}

func (c *tcpConn) writeLoop() error {
	for {
		select {
		case <-c.closed:
			return nil
		case frame, ok := <-c.outbox:
			if !ok {
				return nil
			}
			if err := writeFrame(c.nc, frame); err != nil {
				c.close()
				return nil
			}
		}
	}
}

func (c *tcpConn) readLoop(sink dispatch.EventSink) (reason string) {
	defer c.close()

	for {
		frame, err := readFrame(c.nc)
		if err != nil {
			if err == io.EOF {
				return "eof"
			}
			return err.Error()
		}

		sink.DeliverEvent(dispatch.ReceivedFrameEvent{Peer: c.peer, Frame: frame})
	}
}

// writeFrame encodes only DataFrame variants onto the wire: Hello/Bye/Ack
// are bridge-internal bookkeeping not yet exercised by this transport.
func writeFrame(w io.Writer, frame dispatch.Frame) error {
	data, ok := frame.(dispatch.DataFrame)
	if !ok {
		return nil
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data.Payload)))

	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := w.Write(data.Payload)
	return err
}

func readFrame(r io.Reader) (dispatch.Frame, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxFrameSize {
		return nil, dispatch.ErrMalformedFrame
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	return dispatch.DataFrame{Payload: payload}, nil
}
