package dispatch

import (
	"github.com/google/uuid"
)

// LocalHandle is a stable, arena-style reference to a registered local
// actor. Both registry indices store the slot ID rather than a direct
// actor reference, so duplicate ownership can't arise and removal is a
// single map delete per index (§9 design notes).
type LocalHandle struct {
	slot uint64
}

// handleSlot pairs a registered local actor's sink with the path it was
// registered under, so Registry.PathFor can answer LocalHandleRef.Resolve
// without the caller needing to track its own path.
type handleSlot struct {
	sink Sink
	path ActorPath
}

// Sink is the minimal delivery surface the Address Registry needs for a
// local actor: enqueue a received envelope into its mailbox. Concrete
// callers typically satisfy this with an actor.ActorRef[ReceivedEnvelope,
// any].Tell.
type Sink interface {
	Deliver(env ReceivedEnvelope)
}

// trieNode is one node of the named-path prefix tree. Only nodes with a
// non-nil handle correspond to a registered actor; intermediate nodes
// exist purely as path structure.
type trieNode struct {
	children map[string]*trieNode
	handle   *LocalHandle
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

// Registry is the Address Registry: it maps both unique actor IDs and
// named hierarchical paths to local delivery handles (§3). Each
// registration lives in exactly one index, chosen by its path's variant:
// a Named registration has no Unique ID entry, and a Unique one has no
// trie entry.
//
// Registry is not safe for concurrent use; the Dispatcher Core is its
// sole owner and mutates it only from its single-threaded receive loop.
type Registry struct {
	nextSlot uint64

	byUID  map[uuid.UUID]LocalHandle
	byPath *trieNode

	slots map[uint64]handleSlot
}

// NewRegistry builds an empty Address Registry.
func NewRegistry() *Registry {
	return &Registry{
		byUID:  make(map[uuid.UUID]LocalHandle),
		byPath: newTrieNode(),
		slots:  make(map[uint64]handleSlot),
	}
}

// Insert registers sink under path, returning the handle assigned to it.
// If path is a Named path that collides with an existing registration,
// the insert fails with ErrDuplicatePath and the existing registration is
// left untouched. Unique IDs never collide, since callers are expected to
// generate them with a globally-unique source (uuid.NewRandom or
// equivalent).
func (r *Registry) Insert(path ActorPath, sink Sink) (LocalHandle, error) {
	if !path.IsUnique() {
		if _, ok := r.lookupNamed(path.Named()); ok {
			return LocalHandle{}, ErrDuplicatePath
		}
	}

	r.nextSlot++
	handle := LocalHandle{slot: r.nextSlot}

	r.slots[handle.slot] = handleSlot{sink: sink, path: path}

	if path.IsUnique() {
		r.byUID[path.UniqueID()] = handle
		return handle, nil
	}

	node := r.byPath
	for _, seg := range path.Named() {
		child, ok := node.children[seg]
		if !ok {
			child = newTrieNode()
			node.children[seg] = child
		}
		node = child
	}
	node.handle = &handle

	return handle, nil
}

// Lookup resolves path to its registered handle. Unique lookups are O(1);
// Named lookups are O(depth) trie traversal and require an exact-length
// match (a prefix of a registered path is never delivered).
func (r *Registry) Lookup(path ActorPath) (LocalHandle, bool) {
	if path.IsUnique() {
		h, ok := r.byUID[path.UniqueID()]
		return h, ok
	}

	return r.lookupNamed(path.Named())
}

func (r *Registry) lookupNamed(segs NamedPath) (LocalHandle, bool) {
	node := r.byPath
	for _, seg := range segs {
		child, ok := node.children[seg]
		if !ok {
			return LocalHandle{}, false
		}
		node = child
	}

	if node.handle == nil {
		return LocalHandle{}, false
	}

	return *node.handle, true
}

// Remove removes path's registration, returning the handle that was
// removed, if any. Only the index matching path's variant holds an entry
// for it.
func (r *Registry) Remove(path ActorPath) (LocalHandle, bool) {
	handle, ok := r.Lookup(path)
	if !ok {
		return LocalHandle{}, false
	}

	slot, ok := r.slots[handle.slot]
	if !ok {
		return LocalHandle{}, false
	}

	delete(r.slots, handle.slot)

	if slot.path.IsUnique() {
		delete(r.byUID, slot.path.UniqueID())
	} else {
		r.removeNamed(slot.path.Named())
	}

	return handle, true
}

func (r *Registry) removeNamed(segs NamedPath) {
	node := r.byPath
	for _, seg := range segs {
		child, ok := node.children[seg]
		if !ok {
			return
		}
		node = child
	}
	node.handle = nil
}

// PathFor returns the path a handle was registered under, satisfying
// LocalResolver for PathResolvable.Resolve.
func (r *Registry) PathFor(handle LocalHandle) (ActorPath, bool) {
	slot, ok := r.slots[handle.slot]
	if !ok {
		return ActorPath{}, false
	}
	return slot.path, true
}

// SinkFor returns the delivery sink registered for a handle.
func (r *Registry) SinkFor(handle LocalHandle) (Sink, bool) {
	slot, ok := r.slots[handle.slot]
	if !ok {
		return nil, false
	}
	return slot.sink, true
}
