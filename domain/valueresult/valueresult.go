// Package valueresult implements the tagged-sum read outcome returned by
// every cache read: exactly one of Hit, Stale, or Miss.
package valueresult

import (
	"time"

	cacheerrors "cachecore/pkg/errors"
)

type state int

const (
	stateHit state = iota
	stateStale
	stateMiss
)

// ValueResult is the immutable outcome of a cache read. Zero value is not
// meaningful; construct via Hit, Stale, or Miss.
type ValueResult struct {
	state         state
	value         interface{}
	createdAt     time.Time
	softExpiresAt time.Time
}

// Hit constructs a fresh-hit result: value exists and now < softExpiresAt.
func Hit(value interface{}, createdAt, softExpiresAt time.Time) ValueResult {
	return ValueResult{state: stateHit, value: value, createdAt: createdAt, softExpiresAt: softExpiresAt}
}

// Stale constructs a stale-hit result: value exists but now >= softExpiresAt.
func Stale(value interface{}, createdAt, softExpiresAt time.Time) ValueResult {
	return ValueResult{state: stateStale, value: value, createdAt: createdAt, softExpiresAt: softExpiresAt}
}

// Miss constructs a miss result: no value available.
func Miss() ValueResult {
	return ValueResult{state: stateMiss}
}

// IsHit reports whether this result is a fresh hit.
func (v ValueResult) IsHit() bool { return v.state == stateHit }

// IsStale reports whether this result is a stale hit.
func (v ValueResult) IsStale() bool { return v.state == stateStale }

// IsMiss reports whether this result carries no value.
func (v ValueResult) IsMiss() bool { return v.state == stateMiss }

// Value returns the cached payload. Fails with ValueAccessOnMiss if this
// result is a Miss.
func (v ValueResult) Value() (interface{}, error) {
	if v.state == stateMiss {
		return nil, cacheerrors.NewValueAccessOnMiss("value() called on a Miss result")
	}
	return v.value, nil
}

// CreatedAt returns the entry's creation timestamp. Undefined for Miss.
func (v ValueResult) CreatedAt() time.Time { return v.createdAt }

// SoftExpiresAt returns the derived soft-expiry timestamp. Undefined for Miss.
func (v ValueResult) SoftExpiresAt() time.Time { return v.softExpiresAt }
