// Package jitter computes deterministic, key-keyed TTL perturbation so that
// a fleet of cache entries populated at the same moment do not all expire
// in lockstep.
package jitter

import (
	"github.com/cespare/xxhash/v2"
)

// Stringer is the minimal capability jitter needs from a key: a stable
// string form. domain/key.Key satisfies this via its String method.
type Stringer interface {
	String() string
}

// Jitter applies a deterministic ±percent perturbation to a TTL, keyed by a
// fingerprint's string form.
type Jitter struct {
	percent int
}

// New constructs a Jitter for the given percent, e.g. 10 for ±10%.
func New(percent int) Jitter {
	if percent < 0 {
		percent = 0
	}
	return Jitter{percent: percent}
}

// Apply computes delta = floor(ttlSec*percent/100); if delta is zero the
// ttl is returned unperturbed (floored at 1). Otherwise an offset in
// [-delta, +delta] is derived from a 32-bit hash of key.String() modulo
// 2*delta+1, and ttlSec+offset is returned, floored at 1.
func (j Jitter) Apply(ttlSec int, key Stringer) int {
	if ttlSec < 1 {
		ttlSec = 1
	}
	delta := ttlSec * j.percent / 100
	if delta <= 0 {
		return max1(ttlSec)
	}

	h := hash32(key.String())
	span := uint32(2*delta + 1)
	offset := int(h%span) - delta

	return max1(ttlSec + offset)
}

func hash32(s string) uint32 {
	sum := xxhash.Sum64String(s)
	return uint32(sum)
}

func max1(v int) int {
	if v < 1 {
		return 1
	}
	return v
}
