// Package engine implements the five-tier stale-while-revalidate read
// pipeline, single-flight coordination, and invalidation dispatch that sit
// at the center of the cache core.
package engine

import (
	"go.uber.org/zap"

	"cachecore/application/ports"
	"cachecore/domain/clock"
	"cachecore/domain/jitter"
	"cachecore/domain/policy"
)

// Default Tier 4 bounds and default lock TTL, overridable via Option and
// per-call via GetPolicy.
const (
	defaultTier4PauseMs     = 150
	defaultTier4MaxAttempts = 6
	defaultLockTTLSec       = 30
)

// Engine is the orchestrator. Its fields are immutable after construction,
// so no locking is needed around them; the only shared mutable resource is
// the remote store reached through StoreAdapter.
type Engine struct {
	store  ports.StoreAdapter
	loader ports.Loader
	jit    jitter.Jitter

	metrics ports.Metrics
	bus     ports.EventBus
	clock   clock.Clock
	logger  *zap.Logger

	defaultPolicy policy.GetPolicy

	tier4PauseMs     int
	tier4MaxAttempts int
	lockTTLSec       int
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithMetrics installs a Metrics sink. Without this option, observations
// are discarded.
func WithMetrics(m ports.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithEventBus installs an EventBus for ASYNC refresh/invalidate dispatch.
// Without this option, ASYNC calls fail with InvalidArgument.
func WithEventBus(bus ports.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithClock overrides the injected clock (tests use a controllable clock
// to make soft/hard expiry math deterministic).
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger installs a structured logger. Without this option, a no-op
// logger is used.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithDefaultPolicy sets the policy used by GetDefault and Put.
func WithDefaultPolicy(p policy.GetPolicy) Option {
	return func(e *Engine) { e.defaultPolicy = p }
}

// WithTier4Defaults overrides the engine-wide Tier 4 pause/attempts bounds.
func WithTier4Defaults(pauseMs, maxAttempts int) Option {
	return func(e *Engine) {
		e.tier4PauseMs = pauseMs
		e.tier4MaxAttempts = maxAttempts
	}
}

// WithLockTTL overrides the engine-wide default lock TTL in seconds.
func WithLockTTL(lockTTLSec int) Option {
	return func(e *Engine) { e.lockTTLSec = lockTTLSec }
}

// New constructs an Engine over the given store and loader.
func New(store ports.StoreAdapter, loader ports.Loader, jit jitter.Jitter, opts ...Option) *Engine {
	e := &Engine{
		store:            store,
		loader:           loader,
		jit:              jit,
		metrics:          ports.NoopMetrics{},
		clock:            clock.Real{},
		logger:           zap.NewNop(),
		tier4PauseMs:     defaultTier4PauseMs,
		tier4MaxAttempts: defaultTier4MaxAttempts,
		lockTTLSec:       defaultLockTTLSec,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
