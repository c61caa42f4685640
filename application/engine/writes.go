package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"cachecore/application/ports"
	cacheerrors "cachecore/pkg/errors"

	"cachecore/domain/key"
	"cachecore/domain/policy"
)

// domainPrefixOf returns the leading path segment of a hierarchical prefix
// string, including its trailing "/" — the whole-namespace scope a
// CascadeNamespaces invalidation widens out to.
func domainPrefixOf(prefixString string) string {
	if i := strings.IndexByte(prefixString, '/'); i >= 0 {
		return prefixString[:i+1]
	}
	return prefixString + "/"
}

// Put stores value under key directly, using the engine's default policy
// for TTL and jitter.
func (e *Engine) Put(ctx context.Context, k key.Key, v interface{}) error {
	return e.save(ctx, k, v, e.defaultPolicy)
}

// Refresh recomputes key's value. SYNC resolves inline and writes through
// Put; ASYNC dispatches an AsyncEvent tagged Refresh:true, which a worker
// eventually turns into a SYNC call.
func (e *Engine) Refresh(ctx context.Context, k key.Key, mode policy.RefreshMode) error {
	switch mode {
	case policy.SyncMode:
		v, err := e.loader.Resolve(ctx, k)
		if err != nil {
			return cacheerrors.Wrap(cacheerrors.LoaderFailed, err, "refresh sync: loader failed")
		}
		return e.Put(ctx, k, v)
	case policy.AsyncMode:
		return e.dispatch(ctx, ports.AsyncEvent{Key: k, Exact: false, Refresh: true})
	default:
		return cacheerrors.NewInvalidArgument("unknown refresh mode")
	}
}

// Invalidate clears every entry whose keyString begins with selector's
// prefix. SYNC (DELETE_SYNC/DEFAULT) clears inline; DELETE_ASYNC and
// REFRESH_ASYNC both dispatch the same non-blocking event, since a
// prefix-scoped selector has no single resolvable key for the loader to
// recompute — REFRESH_SYNC is not meaningful for a prefix selector and is
// rejected with InvalidArgument; use Refresh for a single key instead.
// When ip.CascadeNamespaces is set, the clear widens from selector's own
// prefix to the entire top-level domain namespace it belongs to.
func (e *Engine) Invalidate(ctx context.Context, selector key.Selector, ip policy.InvalidatePolicy) error {
	switch ip.Mode {
	case policy.DeleteSync, policy.DefaultMode:
		if err := e.store.ClearByPrefix(ctx, selector.PrefixString()); err != nil {
			return err
		}
		if ip.CascadeNamespaces {
			return e.store.ClearByPrefix(ctx, domainPrefixOf(selector.PrefixString()))
		}
		return nil
	case policy.DeleteAsync, policy.RefreshAsync:
		return e.dispatch(ctx, ports.AsyncEvent{Prefix: selector.PrefixString(), Exact: false, Refresh: false, Cascade: ip.CascadeNamespaces})
	default:
		return cacheerrors.NewInvalidArgument("invalidate does not support REFRESH_SYNC for a prefix selector; use Refresh for a single key")
	}
}

// InvalidateExact removes exactly one entry. SYNC (DELETE_SYNC/DEFAULT)
// deletes inline; DELETE_ASYNC dispatches a non-blocking event. When
// ip.CascadeNamespaces is set, the sync path also clears the key's entire
// top-level domain namespace after the exact delete.
func (e *Engine) InvalidateExact(ctx context.Context, k key.Key, ip policy.InvalidatePolicy) error {
	switch ip.Mode {
	case policy.DeleteSync, policy.DefaultMode:
		if err := e.store.DeleteExact(ctx, k.String()); err != nil {
			return err
		}
		if ip.CascadeNamespaces {
			return e.store.ClearByPrefix(ctx, domainPrefixOf(k.PrefixString()))
		}
		return nil
	case policy.DeleteAsync:
		return e.dispatch(ctx, ports.AsyncEvent{Key: k, Exact: true, Cascade: ip.CascadeNamespaces})
	default:
		return cacheerrors.NewInvalidArgument("invalidateExact only supports DELETE_SYNC, DELETE_ASYNC, or DEFAULT")
	}
}

// BumpNamespace is an alias for a scoped Invalidate: this implementation
// treats bumping a namespace and clearing its prefix as equivalent, since
// no separate namespace-version counter is introduced.
func (e *Engine) BumpNamespace(ctx context.Context, prefix string) error {
	return e.Invalidate(ctx, key.Prefix(prefix), policy.NewInvalidatePolicy(policy.DeleteSync, false))
}

// HandleAsyncEvent translates a dispatched AsyncEvent back into its SYNC
// counterpart. It is the single place permitted to do so: none of the
// three branches below ever calls dispatch again, which is what keeps
// async handling free of re-dispatch loops.
func (e *Engine) HandleAsyncEvent(ctx context.Context, event ports.AsyncEvent) error {
	switch {
	case event.Refresh:
		return e.Refresh(ctx, event.Key, policy.SyncMode)
	case event.Exact:
		return e.InvalidateExact(ctx, event.Key, policy.NewInvalidatePolicy(policy.DeleteSync, event.Cascade))
	default:
		return e.Invalidate(ctx, key.Prefix(event.Prefix), policy.NewInvalidatePolicy(policy.DeleteSync, event.Cascade))
	}
}

// dispatch enqueues an AsyncEvent on the configured bus. Dispatch is
// non-blocking from the caller's perspective; the bus itself is
// responsible for not blocking this call.
func (e *Engine) dispatch(ctx context.Context, event ports.AsyncEvent) error {
	if e.bus == nil {
		return cacheerrors.NewInvalidArgument("no event bus configured for async dispatch")
	}
	if err := e.bus.Dispatch(ctx, event); err != nil {
		e.logger.Error("failed to dispatch async event", zap.Error(err))
		return err
	}
	return nil
}
