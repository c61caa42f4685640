package ports

import (
	"context"

	"cachecore/domain/key"
)

// AsyncEvent is the minimal envelope dispatched for asynchronous
// invalidation/refresh. The async handler translates it back into the
// engine's SYNC counterpart; handlers MUST NOT re-dispatch (no infinite
// invalidation loops).
type AsyncEvent struct {
	// Key is the exact key this event concerns. Meaningful when Exact or
	// Refresh is true; DeleteExact and Refresh both need the full key, not
	// just its hierarchical prefix.
	Key key.Key
	// Prefix is the hierarchical prefix this event concerns. Meaningful
	// when both Exact and Refresh are false (a prefix-scoped invalidate
	// has no single resolvable key to hand the loader).
	Prefix string
	// Exact selects InvalidateExact semantics when true, Invalidate
	// (prefix) semantics when false.
	Exact bool
	// Refresh, when true, routes the handler to Refresh(ctx, Key, SYNC)
	// instead of an invalidation call. Only ever set together with a
	// populated Key (single-key refresh, never a prefix).
	Refresh bool
	// Cascade carries InvalidatePolicy.CascadeNamespaces across the async
	// round trip, so a worker handling this event widens the clear to the
	// whole domain namespace exactly as the originating sync call would
	// have.
	Cascade bool
}

// EventBus is the minimal publish abstraction for asynchronous dispatch.
// Dispatch MUST be non-blocking from the caller's perspective (enqueue and
// return); delivery is at-least-once and handlers MUST be idempotent.
type EventBus interface {
	Dispatch(ctx context.Context, event AsyncEvent) error
}

// EventHandler processes a dispatched AsyncEvent. Handler errors MUST be
// logged by the bus but not rethrown into bus infrastructure.
type EventHandler interface {
	Handle(ctx context.Context, event AsyncEvent) error
}

// EventHandlerFunc adapts a plain function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event AsyncEvent) error

// Handle calls f.
func (f EventHandlerFunc) Handle(ctx context.Context, event AsyncEvent) error {
	return f(ctx, event)
}
