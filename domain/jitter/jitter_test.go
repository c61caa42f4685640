package jitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeKey string

func (f fakeKey) String() string { return string(f) }

func TestApply_DeterministicForSameKey(t *testing.T) {
	j := New(10)
	k := fakeKey("user-profile/summary/u123")

	first := j.Apply(100, k)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, j.Apply(100, k), "same key and ttl must always perturb identically")
	}
}

func TestApply_BoundedWithinDelta(t *testing.T) {
	j := New(10)
	ttl := 100
	delta := ttl * 10 / 100

	for i := 0; i < 50; i++ {
		k := fakeKey(string(rune('a' + i%26)))
		got := j.Apply(ttl, k)
		assert.GreaterOrEqual(t, got, ttl-delta)
		assert.LessOrEqual(t, got, ttl+delta)
	}
}

func TestApply_ZeroPercentIsNoop(t *testing.T) {
	j := New(0)
	k := fakeKey("any-key")
	assert.Equal(t, 100, j.Apply(100, k))
}

func TestApply_NegativePercentClampedToZero(t *testing.T) {
	j := New(-5)
	k := fakeKey("any-key")
	assert.Equal(t, 100, j.Apply(100, k))
}

func TestApply_FloorsAtOne(t *testing.T) {
	j := New(0)
	k := fakeKey("any-key")
	assert.Equal(t, 1, j.Apply(0, k))
	assert.Equal(t, 1, j.Apply(-10, k))
}

func TestApply_DifferentKeysCanYieldDifferentOffsets(t *testing.T) {
	j := New(20)
	results := make(map[int]bool)
	for i := 0; i < 20; i++ {
		k := fakeKey(string(rune('a' + i)))
		results[j.Apply(100, k)] = true
	}
	assert.Greater(t, len(results), 1, "distinct keys should not all collapse onto the same perturbed ttl")
}
