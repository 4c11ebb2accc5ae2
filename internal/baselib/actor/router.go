package actor

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrNoRegisteredActors is returned by a routing strategy when no actors are
// currently registered under the service key being routed to.
var ErrNoRegisteredActors = errors.New("no actors registered for service key")

// RoutingStrategy picks one of a set of candidate actor references to
// deliver a message to. Implementations must be safe for concurrent use, as
// a single router may be shared across many callers.
type RoutingStrategy[M Message, R any] interface {
	// Select picks one ref from the candidates slice, which may be empty
	// when no actor is registered; it returns an error in that case.
	Select(candidates []ActorRef[M, R]) (ActorRef[M, R], error)
}

// roundRobinStrategy cycles through candidates in order, wrapping around.
// It uses an atomic counter rather than a mutex so routing never blocks on
// contention between senders.
type roundRobinStrategy[M Message, R any] struct {
	next atomic.Uint64
}

// NewRoundRobinStrategy returns a RoutingStrategy that distributes messages
// evenly across every actor registered under a service key.
func NewRoundRobinStrategy[M Message, R any]() RoutingStrategy[M, R] {
	return &roundRobinStrategy[M, R]{}
}

// Select implements RoutingStrategy.
func (s *roundRobinStrategy[M, R]) Select(
	candidates []ActorRef[M, R]) (ActorRef[M, R], error) {

	if len(candidates) == 0 {
		return nil, ErrNoRegisteredActors
	}

	idx := s.next.Add(1) % uint64(len(candidates))
	return candidates[idx], nil
}

// router is an ActorRef that re-resolves its targets from the receptionist
// on every call, rather than binding to a fixed actor at construction time.
// This lets a ServiceKey.Ref() value keep routing correctly as registrations
// for that key come and go (e.g. a peer connection actor restarting).
type router[M Message, R any] struct {
	receptionist *Receptionist
	key          ServiceKey[M, R]
	strategy     RoutingStrategy[M, R]
	dlo          ActorRef[Message, any]
}

// NewRouter builds an ActorRef that routes each message to one of the actors
// currently registered under key, chosen by strategy. If no actors are
// registered, the message is sent to dlo (if non-nil) instead of being
// silently dropped.
func NewRouter[M Message, R any](
	receptionist *Receptionist, key ServiceKey[M, R],
	strategy RoutingStrategy[M, R],
	dlo ActorRef[Message, any]) ActorRef[M, R] {

	return &router[M, R]{
		receptionist: receptionist,
		key:          key,
		strategy:     strategy,
		dlo:          dlo,
	}
}

// ID returns a stable identifier for this router, derived from its service
// key's name.
func (r *router[M, R]) ID() string {
	return "router->" + r.key.name
}

// resolve picks the next target actor, or reports ErrNoRegisteredActors.
func (r *router[M, R]) resolve() (ActorRef[M, R], error) {
	candidates := FindInReceptionist[M, R](r.receptionist, r.key)
	return r.strategy.Select(candidates)
}

// Tell routes the message to one registered actor, or to the DLO if none are
// currently registered.
func (r *router[M, R]) Tell(ctx context.Context, msg M) {
	target, err := r.resolve()
	if err != nil {
		log.DebugS(ctx, "Router has no targets, routing to DLO",
			"service_key", r.key.name)

		if r.dlo != nil {
			r.dlo.Tell(ctx, msg)
		}
		return
	}

	target.Tell(ctx, msg)
}

// Ask routes the message to one registered actor and returns its Future. If
// no actor is registered, the returned Future resolves immediately with
// ErrNoRegisteredActors.
func (r *router[M, R]) Ask(ctx context.Context, msg M) Future[R] {
	target, err := r.resolve()
	if err != nil {
		promise := NewPromise[R]()
		promise.Complete(fn.Err[R](err))
		return promise.Future()
	}

	return target.Ask(ctx, msg)
}
