package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachecore/domain/jitter"
	"cachecore/domain/key"
	"cachecore/domain/policy"
)

func mustKey(t *testing.T, id string) key.Key {
	t.Helper()
	k, err := key.New("user-profile", "summary", "", "", id)
	require.NoError(t, err)
	return k
}

// TestGet_Tier1FreshHit: a value saved well within its soft window is
// served straight off the fast path, without ever calling the loader.
func TestGet_Tier1FreshHit(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")
	store.put(k.String(), "cached-value", clk.Now(), clk.Now().Add(60*time.Second))

	loader := &fakeLoader{resolve: func(ctx context.Context, k key.Key) (interface{}, error) {
		t.Fatal("loader must not be called on a fresh Tier 1 hit")
		return nil, nil
	}}

	e := New(store, loader, jitter.New(0), WithClock(clk))
	p, err := policy.NewGetPolicy(60, 30, policy.SyncMode, policy.FailOpen)
	require.NoError(t, err)

	vr, err := e.Get(context.Background(), k, p)
	require.NoError(t, err)
	assert.True(t, vr.IsHit())
	val, err := vr.Value()
	require.NoError(t, err)
	assert.Equal(t, "cached-value", val)
}

// TestGet_Tier2LeaderComputesAndSaves: no entry exists, so the calling
// goroutine wins the lock, resolves via the loader, and saves.
func TestGet_Tier2LeaderComputesAndSaves(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")

	loader := &fakeLoader{resolve: func(ctx context.Context, k key.Key) (interface{}, error) {
		return "computed-value", nil
	}}

	e := New(store, loader, jitter.New(0), WithClock(clk))
	p, err := policy.NewGetPolicy(60, 30, policy.SyncMode, policy.FailOpen)
	require.NoError(t, err)

	vr, err := e.Get(context.Background(), k, p)
	require.NoError(t, err)
	assert.True(t, vr.IsHit())
	val, err := vr.Value()
	require.NoError(t, err)
	assert.Equal(t, "computed-value", val)
	assert.Equal(t, 1, loader.callCount())
	assert.True(t, store.has(k.String()), "leader path must persist its computation")
}

// TestGet_Tier3FollowerServesStale: another process holds the lock, and a
// stale entry already exists; the follower must serve it rather than wait.
func TestGet_Tier3FollowerServesStale(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")
	store.put(k.String(), "stale-value", clk.Now().Add(-120*time.Second), clk.Now().Add(-60*time.Second))

	acquired, _, err := store.TryLock(context.Background(), k.String(), 30)
	require.NoError(t, err)
	require.True(t, acquired, "test setup must hold the lock so the engine falls to Tier 3")

	loader := &fakeLoader{resolve: func(ctx context.Context, k key.Key) (interface{}, error) {
		t.Fatal("loader must not be called while a stale value can be served")
		return nil, nil
	}}

	e := New(store, loader, jitter.New(0), WithClock(clk))
	p, err := policy.NewGetPolicy(60, 30, policy.SyncMode, policy.FailOpen)
	require.NoError(t, err)

	vr, err := e.Get(context.Background(), k, p)
	require.NoError(t, err)
	assert.True(t, vr.IsStale())
	val, err := vr.Value()
	require.NoError(t, err)
	assert.Equal(t, "stale-value", val)
}

// TestGet_Tier4FollowerWaitsForLeader: another process holds the lock and
// no stale value exists yet, but the leader finishes mid-poll and saves a
// fresh value the follower then observes.
func TestGet_Tier4FollowerWaitsForLeader(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")

	acquired, release, err := store.TryLock(context.Background(), k.String(), 30)
	require.NoError(t, err)
	require.True(t, acquired)

	go func() {
		time.Sleep(5 * time.Millisecond)
		store.put(k.String(), "leader-saved-value", clk.Now(), clk.Now().Add(60*time.Second))
		_ = release(context.Background())
	}()

	loader := &fakeLoader{resolve: func(ctx context.Context, k key.Key) (interface{}, error) {
		t.Fatal("follower must not invoke the loader itself")
		return nil, nil
	}}

	e := New(store, loader, jitter.New(0), WithClock(clk), WithTier4Defaults(2, 20))
	p, err := policy.NewGetPolicy(60, 30, policy.SyncMode, policy.FailOpen)
	require.NoError(t, err)

	vr, err := e.Get(context.Background(), k, p)
	require.NoError(t, err)
	assert.True(t, vr.IsHit())
	val, err := vr.Value()
	require.NoError(t, err)
	assert.Equal(t, "leader-saved-value", val)
}

// TestGet_Tier5FailOpenComputesWithoutCaching: every tier is exhausted
// (locked, no stale value, poll exhausted) and the policy is fail-open, so
// the engine computes directly without persisting the result.
func TestGet_Tier5FailOpenComputesWithoutCaching(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")

	acquired, _, err := store.TryLock(context.Background(), k.String(), 30)
	require.NoError(t, err)
	require.True(t, acquired)

	loader := &fakeLoader{resolve: func(ctx context.Context, k key.Key) (interface{}, error) {
		return "fail-open-value", nil
	}}

	e := New(store, loader, jitter.New(0), WithClock(clk), WithTier4Defaults(1, 2))
	p, err := policy.NewGetPolicy(60, 30, policy.SyncMode, policy.FailOpen)
	require.NoError(t, err)

	vr, err := e.Get(context.Background(), k, p)
	require.NoError(t, err)
	assert.True(t, vr.IsHit())
	val, err := vr.Value()
	require.NoError(t, err)
	assert.Equal(t, "fail-open-value", val)
	assert.False(t, store.has(k.String()), "fail-open computations must not be persisted")
}

// TestGet_Tier5FailClosedReturnsMiss: same exhausted conditions, but a
// fail-closed policy must return Miss instead of computing uncached.
func TestGet_Tier5FailClosedReturnsMiss(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")

	acquired, _, err := store.TryLock(context.Background(), k.String(), 30)
	require.NoError(t, err)
	require.True(t, acquired)

	loader := &fakeLoader{resolve: func(ctx context.Context, k key.Key) (interface{}, error) {
		t.Fatal("fail-closed tier 5 must not call the loader")
		return nil, nil
	}}

	e := New(store, loader, jitter.New(0), WithClock(clk), WithTier4Defaults(1, 2))
	p, err := policy.NewGetPolicy(60, 30, policy.SyncMode, policy.FailClosed)
	require.NoError(t, err)

	vr, err := e.Get(context.Background(), k, p)
	require.NoError(t, err)
	assert.True(t, vr.IsMiss())
}

// TestGet_LeaderFallsThroughOnLoaderFailure: the leader wins the lock but
// its loader call fails; the pipeline must fall through to Tier 3/4/5
// exactly as if no leader had won, not propagate the loader error.
func TestGet_LeaderFallsThroughOnLoaderFailure(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")
	store.put(k.String(), "stale-fallback", clk.Now().Add(-120*time.Second), clk.Now().Add(-60*time.Second))

	loader := &fakeLoader{resolve: func(ctx context.Context, k key.Key) (interface{}, error) {
		return nil, assert.AnError
	}}

	e := New(store, loader, jitter.New(0), WithClock(clk))
	p, err := policy.NewGetPolicy(60, 30, policy.SyncMode, policy.FailOpen)
	require.NoError(t, err)

	vr, err := e.Get(context.Background(), k, p)
	require.NoError(t, err)
	assert.True(t, vr.IsStale())
	val, err := vr.Value()
	require.NoError(t, err)
	assert.Equal(t, "stale-fallback", val)
}

// TestGet_ConcurrentCallersSingleFlightOneLoaderInvocation: N goroutines
// call Get on the same missing key at once. Exactly one must win the
// leader lock and invoke the loader; every other caller must fall through
// to Tier 3 or Tier 4 and observe the leader's save, never calling the
// loader itself.
func TestGet_ConcurrentCallersSingleFlightOneLoaderInvocation(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")

	loader := &fakeLoader{resolve: func(ctx context.Context, k key.Key) (interface{}, error) {
		return "single-flight-value", nil
	}}

	e := New(store, loader, jitter.New(0), WithClock(clk), WithTier4Defaults(5, 40))
	p, err := policy.NewGetPolicy(60, 30, policy.SyncMode, policy.FailOpen)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	results := make([]interface{}, n)
	errs := make([]error, n)

	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			start.Wait()
			vr, err := e.Get(context.Background(), k, p)
			errs[idx] = err
			if err == nil {
				results[idx], err = vr.Value()
				errs[idx] = err
			}
		}(i)
	}
	start.Done()
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "single-flight-value", results[i])
	}
	assert.Equal(t, 1, loader.callCount(), "exactly one caller must invoke the loader under concurrent contention")
}

// TestGetDefault_UsesEngineDefaultPolicy confirms GetDefault threads
// through WithDefaultPolicy rather than requiring a policy at the call site.
func TestGetDefault_UsesEngineDefaultPolicy(t *testing.T) {
	clk := newTestClock(time.Unix(1700000000, 0))
	store := newFakeStore(clk)
	k := mustKey(t, "u1")
	store.put(k.String(), "default-policy-value", clk.Now(), clk.Now().Add(60*time.Second))

	loader := &fakeLoader{resolve: func(ctx context.Context, k key.Key) (interface{}, error) {
		t.Fatal("loader must not be called on a fresh hit")
		return nil, nil
	}}

	p, err := policy.NewGetPolicy(60, 30, policy.SyncMode, policy.FailOpen)
	require.NoError(t, err)
	e := New(store, loader, jitter.New(0), WithClock(clk), WithDefaultPolicy(p))

	vr, err := e.GetDefault(context.Background(), k)
	require.NoError(t, err)
	assert.True(t, vr.IsHit())
}
