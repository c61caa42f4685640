package ports

import (
	"context"
	"time"
)

// Mode selects the read behavior of an ItemHandle before Read is called.
type Mode int

const (
	// ModeUnconfigured is the zero value; Configure must be called before Read.
	ModeUnconfigured Mode = iota
	// ModePrecompute makes Read report IsHit()=false once now is within
	// softSec of hardExpiresAt, letting the engine trigger a rebuild inside
	// the soft window while the stored value is still technically present.
	ModePrecompute
	// ModeOld makes Read return the previously stored value even while
	// another process holds the lock (the follower stale-serve tier).
	ModeOld
	// ModeSleep makes Read block, polling for another process to release
	// the lock, bounded by pauseMs*maxAttempts (the follower bounded-wait tier).
	ModeSleep
)

// ItemHandle is a store handle returned by GetItem, whose read behavior is
// configured by one of the Mode* options before Read is called.
type ItemHandle interface {
	// Configure selects the read mode. softSec is used by ModePrecompute;
	// pauseMs/maxAttempts are used by ModeSleep; both are ignored otherwise.
	Configure(mode Mode, softSec int, pauseMs time.Duration, maxAttempts int)

	// Read performs the actual read (and, for ModeSleep, the bounded poll
	// loop), returning the stored value or nil if none is available under
	// the configured mode.
	Read(ctx context.Context) (interface{}, error)

	// IsHit reports whether the most recent Read produced a usable value
	// under the configured mode's freshness rule.
	IsHit() bool

	// KeyString returns the payload keyString this handle was opened for.
	KeyString() string
}

// StoreAdapter abstracts the remote key-value store. Concrete adapters
// (DynamoDB, or an in-memory fake for tests) implement this once; the
// engine never talks to the store directly otherwise.
type StoreAdapter interface {
	// GetItem opens a handle for keyString. The handle must be configured
	// via ItemHandle.Configure before Read is called.
	GetItem(ctx context.Context, keyString string) (ItemHandle, error)

	// TryLock attempts to acquire keyString's per-key exclusive lock with
	// SET-NX-EX semantics, TTL bounded to lockTTLSec (adapters should
	// reject out-of-range TTLs, recommended bound (0, 300] seconds). It
	// returns a release function that MUST be called on every exit path
	// (normal, error, or panic via defer) to drop the lock early; the lock
	// is also released implicitly when lockTTLSec elapses.
	TryLock(ctx context.Context, keyString string, lockTTLSec int) (acquired bool, release func(context.Context) error, err error)

	// Save stores value under keyString's handle with hard expiry ttlSec
	// from now.
	Save(ctx context.Context, handle ItemHandle, value interface{}, ttlSec int) error

	// Timestamps retrieves the entry's creation and hard-expiry timestamps.
	Timestamps(ctx context.Context, handle ItemHandle) (createdAt, hardExpiresAt time.Time, err error)

	// DeleteExact removes exactly one entry, no prefix walk.
	DeleteExact(ctx context.Context, keyString string) error

	// ClearByPrefix removes all entries whose keyString begins with prefix.
	ClearByPrefix(ctx context.Context, prefixString string) error
}
