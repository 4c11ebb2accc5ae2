package dispatch

import "time"

// DefaultInitializingTimeout is the default connect timeout value. The
// Dispatcher Core does not enforce it: a peer stays Initializing until the
// Bridge reports Opened or ConnectFailed.
const DefaultInitializingTimeout = 5 * time.Second

// ConnState is the per-peer connection state machine (§3, §4.2). It is
// sealed by the unexported isConnState method. The states carry no
// transition logic of their own: the Dispatcher Core switches on the
// current state and records the next one via ConnectionTable.Set.
type ConnState interface {
	isConnState()

	// String names the state for logging and observability.
	String() string
}

// StateNew is the initial state for a peer never attempted.
type StateNew struct{}

func (StateNew) isConnState()  {}
func (StateNew) String() string { return "new" }

// StateInitializing is the state while a connect() call is in flight.
type StateInitializing struct {
	// Since records when the connect attempt began. The core records it
	// but never compares it against a timeout.
	Since time.Time
}

func (StateInitializing) isConnState()  {}
func (StateInitializing) String() string { return "initializing" }

// StateConnected is the state once the Bridge has announced an Opened
// event for this peer; Tx is the live send channel.
type StateConnected struct {
	Tx SendChannel
}

func (StateConnected) isConnState()  {}
func (StateConnected) String() string { return "connected" }

// StateClosed is the terminal-until-re-attempt state after a connection
// is lost or fails transiently.
type StateClosed struct{}

func (StateClosed) isConnState()  {}
func (StateClosed) String() string { return "closed" }

// StateBlocked is a state in which the peer is not retried automatically.
// The core only queues and trims frames for a Blocked peer and never
// moves a peer into this state itself.
type StateBlocked struct {
	Reason string
}

func (StateBlocked) isConnState()  {}
func (StateBlocked) String() string { return "blocked" }

// ConnectionTable holds the per-peer ConnState, keyed by SocketAddr. Like
// Registry and QueueManager, it is owned exclusively by the Dispatcher
// Core's single-threaded receive loop and is not safe for concurrent use.
type ConnectionTable struct {
	states map[SocketAddr]ConnState
}

// NewConnectionTable builds an empty Connection Table; peers default to
// StateNew on first reference.
func NewConnectionTable() *ConnectionTable {
	return &ConnectionTable{states: make(map[SocketAddr]ConnState)}
}

// Get returns peer's current state, defaulting to StateNew if the peer
// has never been referenced.
func (t *ConnectionTable) Get(peer SocketAddr) ConnState {
	state, ok := t.states[peer]
	if !ok {
		return StateNew{}
	}
	return state
}

// Set records peer's new state.
func (t *ConnectionTable) Set(peer SocketAddr, state ConnState) {
	t.states[peer] = state
}

// Delete removes peer's entry entirely, reverting it to the StateNew
// default on next reference. Used when a peer's deadletter/overflow
// bookkeeping has nothing left worth tracking.
func (t *ConnectionTable) Delete(peer SocketAddr) {
	delete(t.states, peer)
}

// Peers returns every peer currently tracked in the table, for admin
// introspection.
func (t *ConnectionTable) Peers() []SocketAddr {
	peers := make([]SocketAddr, 0, len(t.states))
	for peer := range t.states {
		peers = append(peers, peer)
	}
	return peers
}
