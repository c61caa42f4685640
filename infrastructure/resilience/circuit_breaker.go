// Package resilience adds circuit-breaker protection around a StoreAdapter,
// adapted from this codebase's repository circuit-breaker decorator (itself
// decorating every repository method with Execute) but backed by
// sony/gobreaker instead of a hand-rolled sliding window, so one
// battle-tested breaker implementation guards every store call.
package resilience

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"cachecore/application/ports"
)

// CircuitBreakerConfig configures the breaker wrapping a StoreAdapter.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive-failure count (within a request
	// window) at which the breaker trips open.
	FailureThreshold uint32
	// OpenDuration is how long the breaker stays open before allowing a
	// single half-open probe request through.
	OpenDuration time.Duration
	// HalfOpenMaxRequests caps concurrent probe requests while half-open.
	HalfOpenMaxRequests uint32
}

// DefaultCircuitBreakerConfig mirrors this codebase's prior hand-rolled
// defaults: trip after a burst of consecutive failures, stay open briefly,
// allow a single probe.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		OpenDuration:        30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// CircuitBreakerStore wraps a StoreAdapter with a gobreaker.CircuitBreaker,
// so a struggling store fails fast instead of piling up blocked callers
// behind Tier 2/Tier 4 waits.
type CircuitBreakerStore struct {
	inner ports.StoreAdapter
	cb    *gobreaker.CircuitBreaker
}

// NewCircuitBreakerStore wraps inner with a named circuit breaker.
func NewCircuitBreakerStore(inner ports.StoreAdapter, name string, cfg CircuitBreakerConfig, logger *zap.Logger) *CircuitBreakerStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxRequests,
		Timeout:     cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &CircuitBreakerStore{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

var _ ports.StoreAdapter = (*CircuitBreakerStore)(nil)

func (s *CircuitBreakerStore) GetItem(ctx context.Context, keyString string) (ports.ItemHandle, error) {
	result, err := s.cb.Execute(func() (interface{}, error) {
		return s.inner.GetItem(ctx, keyString)
	})
	if err != nil {
		return nil, err
	}
	return result.(ports.ItemHandle), nil
}

func (s *CircuitBreakerStore) TryLock(ctx context.Context, keyString string, lockTTLSec int) (bool, func(context.Context) error, error) {
	type lockResult struct {
		acquired bool
		release  func(context.Context) error
	}
	result, err := s.cb.Execute(func() (interface{}, error) {
		acquired, release, err := s.inner.TryLock(ctx, keyString, lockTTLSec)
		if err != nil {
			return nil, err
		}
		return lockResult{acquired: acquired, release: release}, nil
	})
	if err != nil {
		return false, nil, err
	}
	lr := result.(lockResult)
	return lr.acquired, lr.release, nil
}

func (s *CircuitBreakerStore) Save(ctx context.Context, handle ports.ItemHandle, value interface{}, ttlSec int) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.inner.Save(ctx, handle, value, ttlSec)
	})
	return err
}

func (s *CircuitBreakerStore) Timestamps(ctx context.Context, handle ports.ItemHandle) (time.Time, time.Time, error) {
	type timestampResult struct {
		createdAt, hardExpiresAt time.Time
	}
	result, err := s.cb.Execute(func() (interface{}, error) {
		createdAt, hardExpiresAt, err := s.inner.Timestamps(ctx, handle)
		if err != nil {
			return nil, err
		}
		return timestampResult{createdAt: createdAt, hardExpiresAt: hardExpiresAt}, nil
	})
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	tr := result.(timestampResult)
	return tr.createdAt, tr.hardExpiresAt, nil
}

func (s *CircuitBreakerStore) DeleteExact(ctx context.Context, keyString string) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.inner.DeleteExact(ctx, keyString)
	})
	return err
}

func (s *CircuitBreakerStore) ClearByPrefix(ctx context.Context, prefixString string) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.inner.ClearByPrefix(ctx, prefixString)
	})
	return err
}
