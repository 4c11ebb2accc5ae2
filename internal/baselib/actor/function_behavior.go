package actor

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// FunctionBehavior adapts a plain function into an ActorBehavior, so simple
// actors (dead letter sinks, one-off collaborators in tests) don't need a
// dedicated named type.
type FunctionBehavior[M Message, R any] struct {
	fn func(ctx context.Context, msg M) fn.Result[R]
}

// NewFunctionBehavior wraps the given function as an ActorBehavior.
func NewFunctionBehavior[M Message, R any](
	receive func(ctx context.Context, msg M) fn.Result[R]) ActorBehavior[M, R] {

	return &FunctionBehavior[M, R]{fn: receive}
}

// Receive implements the ActorBehavior interface by delegating to the
// wrapped function.
func (f *FunctionBehavior[M, R]) Receive(
	ctx context.Context, msg M) fn.Result[R] {

	return f.fn(ctx, msg)
}
