package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachecore/application/ports"
	"cachecore/domain/jitter"
	"cachecore/domain/key"
	"cachecore/domain/policy"
	cacheerrors "cachecore/pkg/errors"
)

func eventRefresh(k key.Key) ports.AsyncEvent {
	return ports.AsyncEvent{Key: k, Refresh: true}
}

func eventExact(k key.Key) ports.AsyncEvent {
	return ports.AsyncEvent{Key: k, Exact: true}
}

func eventPrefix(prefix string) ports.AsyncEvent {
	return ports.AsyncEvent{Prefix: prefix}
}

func newTestEngine(store *fakeStore, loader *fakeLoader, clk *testClock, opts ...Option) *Engine {
	base := []Option{WithClock(clk)}
	base = append(base, opts...)
	return New(store, loader, jitter.New(0), base...)
}

func TestPut_StoresUnderDefaultPolicy(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")

	p, err := policy.NewGetPolicy(60, 30, policy.SyncMode, policy.FailOpen)
	require.NoError(t, err)
	e := newTestEngine(store, &fakeLoader{}, clk, WithDefaultPolicy(p))

	require.NoError(t, e.Put(context.Background(), k, "put-value"))
	assert.True(t, store.has(k.String()))
}

func TestRefresh_SyncRecomputesAndPutsInline(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")

	loader := &fakeLoader{resolve: func(ctx context.Context, k key.Key) (interface{}, error) {
		return "refreshed-value", nil
	}}
	p, err := policy.NewGetPolicy(60, 30, policy.SyncMode, policy.FailOpen)
	require.NoError(t, err)
	e := newTestEngine(store, loader, clk, WithDefaultPolicy(p))

	require.NoError(t, e.Refresh(context.Background(), k, policy.SyncMode))
	assert.Equal(t, 1, loader.callCount())
	assert.True(t, store.has(k.String()))
}

func TestRefresh_SyncPropagatesLoaderFailureAsLoaderFailedKind(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")

	loader := &fakeLoader{resolve: func(ctx context.Context, k key.Key) (interface{}, error) {
		return nil, assert.AnError
	}}
	e := newTestEngine(store, loader, clk)

	err := e.Refresh(context.Background(), k, policy.SyncMode)
	require.Error(t, err)
	assert.True(t, cacheerrors.IsLoaderFailed(err))
}

func TestRefresh_AsyncDispatchesRefreshTaggedEvent(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")
	bus := &fakeEventBus{}

	e := newTestEngine(store, &fakeLoader{}, clk, WithEventBus(bus))

	require.NoError(t, e.Refresh(context.Background(), k, policy.AsyncMode))

	events := bus.recorded()
	require.Len(t, events, 1)
	assert.True(t, events[0].Refresh)
	assert.False(t, events[0].Exact)
	assert.Equal(t, k, events[0].Key)
}

func TestRefresh_AsyncWithoutEventBusFails(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")
	e := newTestEngine(store, &fakeLoader{}, clk)

	err := e.Refresh(context.Background(), k, policy.AsyncMode)
	assert.Error(t, err)
}

func TestRefresh_UnknownModeRejected(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")
	e := newTestEngine(store, &fakeLoader{}, clk)

	err := e.Refresh(context.Background(), k, policy.RefreshMode("BOGUS"))
	assert.Error(t, err)
}

func TestInvalidate_SyncClearsByPrefix(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k1 := mustKey(t, "u1")
	k2 := mustKey(t, "u2")
	store.put(k1.String(), "v1", clk.Now(), clk.Now().Add(60*time.Second))
	store.put(k2.String(), "v2", clk.Now(), clk.Now().Add(60*time.Second))

	e := newTestEngine(store, &fakeLoader{}, clk)

	require.NoError(t, e.Invalidate(context.Background(), key.Prefix(k1.PrefixString()), policy.NewInvalidatePolicy(policy.DeleteSync, false)))
	assert.False(t, store.has(k1.String()))
	assert.False(t, store.has(k2.String()), "both keys share the same domain/facet prefix")
}

// TestInvalidate_CascadeNamespacesWidensClearToDomainPrefix exercises
// CascadeNamespaces: true, which must clear the whole top-level domain
// namespace in addition to the selector's own narrower prefix.
func TestInvalidate_CascadeNamespacesWidensClearToDomainPrefix(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)

	inScope := mustKey(t, "u1")
	otherFacet, err := key.New(inScope.Domain(), "other-facet", "", "", "u2")
	require.NoError(t, err)
	otherDomain, err := key.New("other-domain", "summary", "", "", "u3")
	require.NoError(t, err)

	store.put(inScope.String(), "v1", clk.Now(), clk.Now().Add(60*time.Second))
	store.put(otherFacet.String(), "v2", clk.Now(), clk.Now().Add(60*time.Second))
	store.put(otherDomain.String(), "v3", clk.Now(), clk.Now().Add(60*time.Second))

	e := newTestEngine(store, &fakeLoader{}, clk)

	ip := policy.NewInvalidatePolicy(policy.DeleteSync, true)
	require.NoError(t, e.Invalidate(context.Background(), key.Prefix(inScope.PrefixString()), ip))

	assert.False(t, store.has(inScope.String()))
	assert.False(t, store.has(otherFacet.String()), "cascade must clear sibling facets in the same domain")
	assert.True(t, store.has(otherDomain.String()), "cascade must not touch an unrelated domain")
}

// TestInvalidateExact_CascadeNamespacesAlsoClearsDomainPrefix mirrors the
// same cascade contract for the single-key delete path.
func TestInvalidateExact_CascadeNamespacesAlsoClearsDomainPrefix(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)

	k := mustKey(t, "u1")
	sibling, err := key.New(k.Domain(), "other-facet", "", "", "u2")
	require.NoError(t, err)

	store.put(k.String(), "v1", clk.Now(), clk.Now().Add(60*time.Second))
	store.put(sibling.String(), "v2", clk.Now(), clk.Now().Add(60*time.Second))

	e := newTestEngine(store, &fakeLoader{}, clk)
	ip := policy.NewInvalidatePolicy(policy.DeleteSync, true)
	require.NoError(t, e.InvalidateExact(context.Background(), k, ip))

	assert.False(t, store.has(k.String()))
	assert.False(t, store.has(sibling.String()), "cascade must clear the whole domain namespace, not just the one key")
}

// TestHandleAsyncEvent_PropagatesCascadeFromEvent confirms the async round
// trip carries Cascade through to the sync invalidation it performs.
func TestHandleAsyncEvent_PropagatesCascadeFromEvent(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)

	k := mustKey(t, "u1")
	sibling, err := key.New(k.Domain(), "other-facet", "", "", "u2")
	require.NoError(t, err)
	store.put(k.String(), "v1", clk.Now(), clk.Now().Add(60*time.Second))
	store.put(sibling.String(), "v2", clk.Now(), clk.Now().Add(60*time.Second))

	e := newTestEngine(store, &fakeLoader{}, clk)
	event := ports.AsyncEvent{Key: k, Exact: true, Cascade: true}
	require.NoError(t, e.HandleAsyncEvent(context.Background(), event))

	assert.False(t, store.has(k.String()))
	assert.False(t, store.has(sibling.String()))
}

func TestInvalidate_AsyncDispatchesPrefixEvent(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	bus := &fakeEventBus{}
	e := newTestEngine(store, &fakeLoader{}, clk, WithEventBus(bus))

	require.NoError(t, e.Invalidate(context.Background(), key.Prefix("user-profile/summary"), policy.NewInvalidatePolicy(policy.DeleteAsync, false)))

	events := bus.recorded()
	require.Len(t, events, 1)
	assert.False(t, events[0].Exact)
	assert.False(t, events[0].Refresh)
	assert.Equal(t, "user-profile/summary", events[0].Prefix)
}

func TestInvalidate_RefreshSyncRejectedForPrefixSelector(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	e := newTestEngine(store, &fakeLoader{}, clk)

	err := e.Invalidate(context.Background(), key.Prefix("user-profile/summary"), policy.NewInvalidatePolicy(policy.RefreshSync, false))
	assert.Error(t, err, "REFRESH_SYNC has no single key for the loader to recompute on a prefix selector")
}

func TestInvalidateExact_SyncDeletesOneEntry(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")
	store.put(k.String(), "v1", clk.Now(), clk.Now().Add(60*time.Second))

	e := newTestEngine(store, &fakeLoader{}, clk)
	require.NoError(t, e.InvalidateExact(context.Background(), k, policy.NewInvalidatePolicy(policy.DeleteSync, false)))
	assert.False(t, store.has(k.String()))
}

func TestInvalidateExact_AsyncDispatchesExactEvent(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")
	bus := &fakeEventBus{}
	e := newTestEngine(store, &fakeLoader{}, clk, WithEventBus(bus))

	require.NoError(t, e.InvalidateExact(context.Background(), k, policy.NewInvalidatePolicy(policy.DeleteAsync, false)))

	events := bus.recorded()
	require.Len(t, events, 1)
	assert.True(t, events[0].Exact)
	assert.Equal(t, k, events[0].Key)
}

func TestInvalidateExact_RefreshModesRejected(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")
	e := newTestEngine(store, &fakeLoader{}, clk)

	assert.Error(t, e.InvalidateExact(context.Background(), k, policy.NewInvalidatePolicy(policy.RefreshSync, false)))
	assert.Error(t, e.InvalidateExact(context.Background(), k, policy.NewInvalidatePolicy(policy.RefreshAsync, false)))
}

func TestBumpNamespace_IsEquivalentToSyncPrefixInvalidate(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")
	store.put(k.String(), "v1", clk.Now(), clk.Now().Add(60*time.Second))

	e := newTestEngine(store, &fakeLoader{}, clk)
	require.NoError(t, e.BumpNamespace(context.Background(), k.PrefixString()))
	assert.False(t, store.has(k.String()))
}

// TestHandleAsyncEvent_NeverRedispatches is the async round-trip contract:
// every branch must resolve via its SYNC counterpart and never call back
// into dispatch, so a worker can safely call HandleAsyncEvent without
// risking an invalidation loop.
func TestHandleAsyncEvent_NeverRedispatches(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	k := mustKey(t, "u1")

	t.Run("refresh event resolves via sync refresh", func(t *testing.T) {
		store := newFakeStore(clk)
		bus := &fakeEventBus{}
		loader := &fakeLoader{resolve: func(ctx context.Context, k key.Key) (interface{}, error) {
			return "async-refreshed", nil
		}}
		e := newTestEngine(store, loader, clk, WithEventBus(bus))

		require.NoError(t, e.HandleAsyncEvent(context.Background(), eventRefresh(k)))
		assert.True(t, store.has(k.String()))
		assert.Empty(t, bus.recorded(), "handling an async event must never dispatch another")
	})

	t.Run("exact event resolves via sync delete", func(t *testing.T) {
		store := newFakeStore(clk)
		store.put(k.String(), "v1", clk.Now(), clk.Now().Add(60*time.Second))
		bus := &fakeEventBus{}
		e := newTestEngine(store, &fakeLoader{}, clk, WithEventBus(bus))

		require.NoError(t, e.HandleAsyncEvent(context.Background(), eventExact(k)))
		assert.False(t, store.has(k.String()))
		assert.Empty(t, bus.recorded())
	})

	t.Run("prefix event resolves via sync clear", func(t *testing.T) {
		store := newFakeStore(clk)
		store.put(k.String(), "v1", clk.Now(), clk.Now().Add(60*time.Second))
		bus := &fakeEventBus{}
		e := newTestEngine(store, &fakeLoader{}, clk, WithEventBus(bus))

		require.NoError(t, e.HandleAsyncEvent(context.Background(), eventPrefix(k.PrefixString())))
		assert.False(t, store.has(k.String()))
		assert.Empty(t, bus.recorded())
	})
}
