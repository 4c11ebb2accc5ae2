// Package dispatch implements the network-facing dispatcher of the actor
// runtime: address resolution, per-peer connection state, and the
// message-to-frame pipeline that ties local actors to remote peers.
package dispatch

import (
	"fmt"
	"net"

	"github.com/google/uuid"
)

// Transport identifies the wire protocol a SystemPath is reachable over.
type Transport uint8

const (
	// TransportLocal identifies the dispatcher's own address space. Routes
	// whose destination system uses this transport are delivered via the
	// Address Registry rather than the network.
	TransportLocal Transport = 0

	// TransportTCP identifies a remote system reachable via TCP.
	TransportTCP Transport = 1

	// TransportUDP identifies a remote system reachable via UDP. UDP is
	// accepted as a value here for wire compatibility, but routing to it
	// always fails with ErrUnsupportedTransport.
	TransportUDP Transport = 2
)

// String returns a human-readable transport name, used in log lines and
// observability events.
func (t Transport) String() string {
	switch t {
	case TransportLocal:
		return "local"
	case TransportTCP:
		return "tcp"
	case TransportUDP:
		return "udp"
	default:
		return "unknown"
	}
}

// SystemPath identifies an actor system: the transport it is reachable
// over, plus an IP and port. The dispatcher's own SystemPath is configured
// at construction time (see Config).
type SystemPath struct {
	Transport Transport
	IP        net.IP
	Port      uint16
}

// SocketAddr returns the system's (ip, port) pair as a net.Addr, used when
// rendering paths. The Connection Table and Queue Manager are keyed by the
// dispatch SocketAddr struct instead.
func (s SystemPath) SocketAddr() net.Addr {
	return &net.TCPAddr{IP: s.IP, Port: int(s.Port)}
}

// Equal reports whether two SystemPaths identify the same actor system.
func (s SystemPath) Equal(o SystemPath) bool {
	return s.Transport == o.Transport && s.IP.Equal(o.IP) && s.Port == o.Port
}

// NamedPath is an ordered sequence of path segments, e.g. ["user",
// "worker", "3"] for a path written elsewhere as "/user/worker/3".
type NamedPath []string

// Equal reports whether two named paths are identical, segment for
// segment.
func (p NamedPath) Equal(o NamedPath) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// pathKind discriminates the two ActorPath variants on the wire (§6).
type pathKind uint8

const (
	pathKindUnique pathKind = 0
	pathKindNamed  pathKind = 1
)

// ActorPath is a tagged, transport-aware address of an actor. Exactly one
// of Unique or Named identifies the actor within its System; callers
// should use NewUniquePath / NewNamedPath rather than constructing this
// struct directly, to keep the two variants from being populated at once.
type ActorPath struct {
	system System
	unique uuid.UUID
	named  NamedPath
	isUnique bool
}

// System describes the actor system a path belongs to; it carries the
// routing-relevant SystemPath.
type System struct {
	Path SystemPath
}

// NewUniquePath builds an ActorPath identifying an actor by its globally
// unique ID within the given system.
func NewUniquePath(sys System, id uuid.UUID) ActorPath {
	return ActorPath{system: sys, unique: id, isUnique: true}
}

// NewNamedPath builds an ActorPath identifying an actor by a hierarchical
// name within the given system.
func NewNamedPath(sys System, segments NamedPath) ActorPath {
	return ActorPath{system: sys, named: segments, isUnique: false}
}

// IsUnique reports whether this path is the Unique variant.
func (p ActorPath) IsUnique() bool { return p.isUnique }

// UniqueID returns the unique ID for a Unique-variant path. It is the
// zero UUID for a Named-variant path.
func (p ActorPath) UniqueID() uuid.UUID { return p.unique }

// Named returns the segment list for a Named-variant path. It is nil for
// a Unique-variant path.
func (p ActorPath) Named() NamedPath { return p.named }

// System returns the actor system this path is addressed within.
func (p ActorPath) System() System { return p.system }

// Equal reports whether two ActorPaths identify the same actor: same
// system, same variant, and same unique ID or named segments.
func (p ActorPath) Equal(o ActorPath) bool {
	if p.isUnique != o.isUnique {
		return false
	}
	if !p.system.Path.Equal(o.system.Path) {
		return false
	}
	if p.isUnique {
		return p.unique == o.unique
	}
	return p.named.Equal(o.named)
}

// String renders a path for logging and observability, e.g.
// "tcp://127.0.0.1:8080/user/worker/3" or a uuid for a Unique path.
func (p ActorPath) String() string {
	prefix := fmt.Sprintf(
		"%s://%s", p.system.Path.Transport,
		p.system.Path.SocketAddr().String(),
	)

	if p.isUnique {
		return prefix + "/" + p.unique.String()
	}

	suffix := ""
	for _, seg := range p.named {
		suffix += "/" + seg
	}
	return prefix + suffix
}

// LocalResolver resolves a bare local handle to the ActorPath it was
// registered under. The Address Registry implements this interface; it is
// factored out here so PathResolvable doesn't need to import registry.go's
// concrete type.
type LocalResolver interface {
	PathFor(handle LocalHandle) (ActorPath, bool)
}

// PathResolvable is either a fully-formed ActorPath, or a local actor
// handle that the dispatcher resolves to the path it was registered under.
// Sealed by the unexported pathResolvableMarker method.
type PathResolvable interface {
	pathResolvableMarker()

	// Resolve turns this value into a concrete ActorPath. reg is consulted
	// to look up a bare local handle's registered path; neither
	// implementation in this package uses localSys.
	Resolve(localSys System, reg LocalResolver) (ActorPath, error)
}

// ResolvedPath wraps an already-concrete ActorPath so it satisfies
// PathResolvable without further lookups.
type ResolvedPath struct {
	Path ActorPath
}

func (ResolvedPath) pathResolvableMarker() {}

// Resolve implements PathResolvable by returning the wrapped path as-is.
func (r ResolvedPath) Resolve(System, LocalResolver) (ActorPath, error) {
	return r.Path, nil
}

// LocalHandleRef is a PathResolvable wrapping a bare local actor handle
// (e.g. a sender that has not been assigned/looked up a path of its own).
// It resolves against the registry entry for that handle.
type LocalHandleRef struct {
	Handle LocalHandle
}

func (LocalHandleRef) pathResolvableMarker() {}

// Resolve looks up the registry entry for Handle and returns its
// registered ActorPath, or ErrUnresolvedLocal if there is none. localSys
// is not used, since the registered path already carries its own System.
func (r LocalHandleRef) Resolve(
	localSys System, reg LocalResolver) (ActorPath, error) {

	path, ok := reg.PathFor(r.Handle)
	if !ok {
		return ActorPath{}, ErrUnresolvedLocal
	}

	return path, nil
}
