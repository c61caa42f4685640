// Package policy defines the immutable GetPolicy and InvalidatePolicy
// records that parameterize a read or an invalidation.
package policy

import cacheerrors "cachecore/pkg/errors"

// RefreshMode controls how Refresh (and the ASYNC arm of a policy) behaves.
type RefreshMode string

const (
	// SyncMode recomputes inline and returns only once the value is fresh.
	SyncMode RefreshMode = "SYNC"
	// AsyncMode dispatches an AsyncEvent and returns immediately.
	AsyncMode RefreshMode = "ASYNC"
)

// FailMode controls Tier 5 behavior when every other tier is exhausted.
type FailMode string

const (
	// FailOpen computes a value without caching it (compute-without-cache).
	FailOpen FailMode = "OPEN"
	// FailClosed returns Miss rather than computing without a cache.
	FailClosed FailMode = "CLOSED"
)

// InvalidateMode selects the execution mode of an invalidation call.
type InvalidateMode string

const (
	DeleteSync    InvalidateMode = "DELETE_SYNC"
	DeleteAsync   InvalidateMode = "DELETE_ASYNC"
	RefreshSync   InvalidateMode = "REFRESH_SYNC"
	RefreshAsync  InvalidateMode = "REFRESH_ASYNC"
	DefaultMode   InvalidateMode = "DEFAULT"
)

// GetPolicy parameterizes a Get/GetMany call: TTL bounds, refresh mode, and
// fail-open/fail-closed behavior for the exhausted-recovery tier.
type GetPolicy struct {
	HardSec     int
	SoftSec     int
	RefreshMode RefreshMode
	FailMode    FailMode

	// Tier4PauseMs/Tier4MaxAttempts override the engine's configured Tier 4
	// bounds for this call when non-zero; zero means "use engine defaults".
	Tier4PauseMs     int
	Tier4MaxAttempts int

	// LockTTLSec bounds the per-key lock acquired during the leader path;
	// zero means "use the engine's configured lock TTL".
	LockTTLSec int
}

// NewGetPolicy validates and constructs a GetPolicy. hardSec must be >= 1;
// softSec must be in [0, hardSec].
func NewGetPolicy(hardSec, softSec int, refreshMode RefreshMode, failMode FailMode) (GetPolicy, error) {
	if hardSec < 1 {
		return GetPolicy{}, cacheerrors.NewInvalidArgument("hardSec must be >= 1")
	}
	if softSec < 0 || softSec > hardSec {
		return GetPolicy{}, cacheerrors.NewInvalidArgument("softSec must be in [0, hardSec]")
	}
	return GetPolicy{
		HardSec:     hardSec,
		SoftSec:     softSec,
		RefreshMode: refreshMode,
		FailMode:    failMode,
	}, nil
}

// WithTier4 returns a derived GetPolicy with Tier 4 bounds overridden.
// The receiver is never mutated.
func (p GetPolicy) WithTier4(pauseMs, maxAttempts int) GetPolicy {
	p.Tier4PauseMs = pauseMs
	p.Tier4MaxAttempts = maxAttempts
	return p
}

// WithLockTTL returns a derived GetPolicy with the lock TTL overridden.
func (p GetPolicy) WithLockTTL(lockTTLSec int) GetPolicy {
	p.LockTTLSec = lockTTLSec
	return p
}

// WithFailMode returns a derived GetPolicy with FailMode overridden.
func (p GetPolicy) WithFailMode(mode FailMode) GetPolicy {
	p.FailMode = mode
	return p
}

// InvalidatePolicy parameterizes an Invalidate/InvalidateExact call.
type InvalidatePolicy struct {
	Mode               InvalidateMode
	CascadeNamespaces bool
}

// NewInvalidatePolicy constructs an InvalidatePolicy.
func NewInvalidatePolicy(mode InvalidateMode, cascadeNamespaces bool) InvalidatePolicy {
	return InvalidatePolicy{Mode: mode, CascadeNamespaces: cascadeNamespaces}
}

// WithCascade returns a derived InvalidatePolicy with CascadeNamespaces set.
func (p InvalidatePolicy) WithCascade(cascade bool) InvalidatePolicy {
	p.CascadeNamespaces = cascade
	return p
}
