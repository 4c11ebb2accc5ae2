package admin

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roasbeef/meshactor/internal/dispatch"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// CoreSnapshotter is the subset of dispatch.Core the admin surface polls to
// broadcast periodic state updates; factored out so the Hub can be tested
// against a fake.
type CoreSnapshotter interface {
	Counters() dispatch.Snapshot
	Peers() []dispatch.SocketAddr
	QueueDepth(peer dispatch.SocketAddr) int
}

// Hub maintains the set of connected admin WebSocket clients, broadcasts
// periodic Core snapshots, and forwards every ObservabilityEvent it
// receives from the Dispatcher Core.
type Hub struct {
	core CoreSnapshotter

	register   chan *client
	unregister chan *client
	broadcast  chan *Message

	mu      sync.RWMutex
	clients map[*client]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// SetCore binds (or replaces) the CoreSnapshotter the Hub polls for
// periodic snapshots. Exists separately from NewHub because constructing
// the Dispatcher Core requires an ObservabilitySink that may itself be
// this Hub, creating a one-step initialization cycle.
func (h *Hub) SetCore(core CoreSnapshotter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.core = core
}

// NewHub builds a Hub that polls core for periodic snapshots. core may be
// nil and set later via SetCore.
func NewHub(core CoreSnapshotter) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		core:       core,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan *Message, 256),
		clients:    make(map[*client]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run drives the hub's main loop until Stop is called. It should be run in
// its own goroutine.
func (h *Hub) Run() {
	go h.runPeriodicUpdates()

	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.Close()
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.Close()
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				c.Send(msg)
			}
			h.mu.RUnlock()
		}
	}
}

// Stop shuts the hub down, closing every connected client.
func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) runPeriodicUpdates() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.broadcastSnapshot()
		}
	}
}

func (h *Hub) broadcastSnapshot() {
	h.mu.RLock()
	core := h.core
	h.mu.RUnlock()

	if core == nil {
		return
	}

	peers := core.Peers()

	type peerDepth struct {
		Peer  string `json:"peer"`
		Depth int    `json:"depth"`
	}
	depths := make([]peerDepth, 0, len(peers))
	for _, p := range peers {
		depths = append(depths, peerDepth{
			Peer:  p.String(),
			Depth: core.QueueDepth(p),
		})
	}

	select {
	case h.broadcast <- &Message{Type: MsgTypeCounters, Payload: core.Counters()}:
	default:
	}
	select {
	case h.broadcast <- &Message{Type: MsgTypePeers, Payload: depths}:
	default:
	}
}

// Observe implements dispatch.ObservabilitySink, broadcasting every
// observability event to connected admin clients in addition to whatever
// other sink (e.g. internal/deadletter.Store) is also wired.
func (h *Hub) Observe(ev dispatch.ObservabilityEvent) {
	select {
	case h.broadcast <- &Message{Type: MsgTypeObserved, Payload: describe(ev)}:
	default:
	}
}

func describe(ev dispatch.ObservabilityEvent) map[string]any {
	switch e := ev.(type) {
	case dispatch.DeadletterEvent:
		return map[string]any{
			"kind": "deadletter", "dst": e.Envelope.Dst.String(),
			"reason": e.Reason.Error(),
		}
	case dispatch.DuplicatePathEvent:
		return map[string]any{"kind": "duplicate_path", "path": e.Path.String()}
	case dispatch.QueueOverflowEvent:
		return map[string]any{"kind": "queue_overflow", "peer": e.Peer.String()}
	case dispatch.ProtocolViolationEvent:
		return map[string]any{"kind": "protocol_violation", "detail": e.Detail}
	default:
		return map[string]any{"kind": "unknown"}
	}
}

// ServeHTTP upgrades the connection to a WebSocket and registers it with
// the hub. Admin clients are read-only: nothing they send is acted on
// beyond keeping the connection alive.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(h, conn)
	h.register <- c

	c.Send(&Message{Type: MsgTypeConnected})

	go c.writePump()
	go c.readPump()
}
