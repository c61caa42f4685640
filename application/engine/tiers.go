package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cachecore/application/ports"
	"cachecore/domain/key"
	"cachecore/domain/policy"
	"cachecore/domain/valueresult"
)

// Get runs the five-tier read pipeline for key k under policy p.
func (e *Engine) Get(ctx context.Context, k key.Key, p policy.GetPolicy) (valueresult.ValueResult, error) {
	if vr, ok := e.tier1(ctx, k, p); ok {
		return vr, nil
	}

	lockTTL := p.LockTTLSec
	if lockTTL <= 0 {
		lockTTL = e.lockTTLSec
	}

	acquired, release, err := e.store.TryLock(ctx, k.String(), lockTTL)
	if err != nil {
		e.logger.Debug("tryLock failed, treating as lock contention", zap.String("key", k.String()), zap.Error(err))
	}
	if acquired {
		vr, fellThrough := e.leaderCompute(ctx, k, p, release)
		if !fellThrough {
			return vr, nil
		}
		// Loader failed on the leader path: no value was produced or saved.
		// Fall through exactly as if no leader had won the lock.
	}

	if vr, ok := e.tier3(ctx, k, p); ok {
		return vr, nil
	}
	if vr, ok := e.tier4(ctx, k, p); ok {
		return vr, nil
	}
	return e.tier5(ctx, k, p)
}

// GetDefault runs Get using the engine's configured default policy.
func (e *Engine) GetDefault(ctx context.Context, k key.Key) (valueresult.ValueResult, error) {
	return e.Get(ctx, k, e.defaultPolicy)
}

// tier1 is the fresh-hit fast path.
func (e *Engine) tier1(ctx context.Context, k key.Key, p policy.GetPolicy) (valueresult.ValueResult, bool) {
	h1, err := e.store.GetItem(ctx, k.String())
	if err != nil {
		e.logger.Debug("tier1 getItem failed", zap.String("key", k.String()), zap.Error(err))
		return valueresult.ValueResult{}, false
	}
	h1.Configure(ports.ModePrecompute, p.SoftSec, 0, 0)

	start := e.clock.Now()
	v1, err := h1.Read(ctx)
	e.metrics.ObserveStoreLatency("get", e.clock.Now().Sub(start))
	if err != nil || !h1.IsHit() {
		return valueresult.ValueResult{}, false
	}

	ca, ea, err := e.store.Timestamps(ctx, h1)
	if err != nil {
		e.logger.Debug("tier1 timestamps failed", zap.Error(err))
		return valueresult.ValueResult{}, false
	}

	soft := maxTime(ca, ea.Add(-time.Duration(p.SoftSec)*time.Second))
	e.metrics.IncHit("fresh")
	return valueresult.Hit(v1, ca, soft), true
}

// leaderCompute runs the Tier 2 single-flight leader path: resolve via the
// loader, save, and always release the lock on every exit path. The second
// return value is true when the loader failed and the caller must fall
// through to Tier 3 as if no leader had won the lock.
func (e *Engine) leaderCompute(ctx context.Context, k key.Key, p policy.GetPolicy, release func(context.Context) error) (valueresult.ValueResult, bool) {
	defer func() {
		if release == nil {
			return
		}
		if err := release(ctx); err != nil {
			e.logger.Warn("failed to release leader lock", zap.String("key", k.String()), zap.Error(err))
		}
	}()

	start := e.clock.Now()
	v, err := e.loader.Resolve(ctx, k)
	e.metrics.ObserveLoaderLatency(e.clock.Now().Sub(start))
	if err != nil {
		e.logger.Warn("loader failed on leader path", zap.String("key", k.String()), zap.Error(err))
		return valueresult.ValueResult{}, true
	}

	if err := e.save(ctx, k, v, p); err != nil {
		e.logger.Error("failed to save leader computation", zap.String("key", k.String()), zap.Error(err))
	} else {
		e.metrics.IncFill()
	}

	now := e.clock.Now()
	hard := now.Add(time.Duration(p.HardSec) * time.Second)
	soft := maxTime(now, hard.Add(-time.Duration(p.SoftSec)*time.Second))
	return valueresult.Hit(v, now, soft), false
}

// tier3 is the follower stale-serve path.
func (e *Engine) tier3(ctx context.Context, k key.Key, p policy.GetPolicy) (valueresult.ValueResult, bool) {
	h2, err := e.store.GetItem(ctx, k.String())
	if err != nil {
		e.logger.Debug("tier3 getItem failed", zap.String("key", k.String()), zap.Error(err))
		return valueresult.ValueResult{}, false
	}
	h2.Configure(ports.ModeOld, 0, 0, 0)

	v2, err := h2.Read(ctx)
	if err != nil || v2 == nil {
		return valueresult.ValueResult{}, false
	}

	ca, ea, err := e.store.Timestamps(ctx, h2)
	if err != nil {
		e.logger.Debug("tier3 timestamps failed", zap.Error(err))
		return valueresult.ValueResult{}, false
	}

	soft := maxTime(ca, ea.Add(-time.Duration(p.SoftSec)*time.Second))
	e.metrics.IncHit("stale")
	return valueresult.Stale(v2, ca, soft), true
}

// tier4 is the follower bounded-wait path.
func (e *Engine) tier4(ctx context.Context, k key.Key, p policy.GetPolicy) (valueresult.ValueResult, bool) {
	pauseMs := p.Tier4PauseMs
	if pauseMs <= 0 {
		pauseMs = e.tier4PauseMs
	}
	maxAttempts := p.Tier4MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.tier4MaxAttempts
	}

	h3, err := e.store.GetItem(ctx, k.String())
	if err != nil {
		e.logger.Debug("tier4 getItem failed", zap.String("key", k.String()), zap.Error(err))
		return valueresult.ValueResult{}, false
	}
	h3.Configure(ports.ModeSleep, 0, time.Duration(pauseMs)*time.Millisecond, maxAttempts)

	v3, err := h3.Read(ctx)
	if err != nil || !h3.IsHit() {
		return valueresult.ValueResult{}, false
	}

	ca, ea, err := e.store.Timestamps(ctx, h3)
	if err != nil {
		e.logger.Debug("tier4 timestamps failed", zap.Error(err))
		return valueresult.ValueResult{}, false
	}

	soft := maxTime(ca, ea.Add(-time.Duration(p.SoftSec)*time.Second))
	_ = v3
	e.metrics.IncHit("fresh_after_sleep")
	return valueresult.Hit(v3, ca, soft), true
}

// tier5 is the fail-open/fail-closed exhausted-recovery path. Fail-open
// computations are deliberately not saved: writing here would either
// overwrite the leader's fresh value or be immediately overwritten by it,
// adding latency without benefit.
func (e *Engine) tier5(ctx context.Context, k key.Key, p policy.GetPolicy) (valueresult.ValueResult, error) {
	if p.FailMode != policy.FailOpen {
		e.metrics.IncMiss("precompute_race_fail_closed")
		return valueresult.Miss(), nil
	}

	start := e.clock.Now()
	v, err := e.loader.Resolve(ctx, k)
	e.metrics.ObserveLoaderLatency(e.clock.Now().Sub(start))
	if err != nil {
		e.logger.Warn("tier5 loader failed", zap.String("key", k.String()), zap.Error(err))
		e.metrics.IncMiss("loader_failed")
		return valueresult.Miss(), nil
	}

	now := e.clock.Now()
	hard := now.Add(time.Duration(p.HardSec) * time.Second)
	soft := maxTime(now, hard.Add(-time.Duration(p.SoftSec)*time.Second))
	e.metrics.IncMiss("precompute_race")
	return valueresult.Hit(v, now, soft), nil
}

// save applies jitter to the hard TTL and stores the value.
func (e *Engine) save(ctx context.Context, k key.Key, v interface{}, p policy.GetPolicy) error {
	ttl := e.jit.Apply(p.HardSec, k)

	handle, err := e.store.GetItem(ctx, k.String())
	if err != nil {
		return err
	}
	return e.store.Save(ctx, handle, v, ttl)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
