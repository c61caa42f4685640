package valueresult

import (
	"testing"
	"time"

	cacheerrors "cachecore/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHit_StateIsMutuallyExclusive(t *testing.T) {
	now := time.Now()
	v := Hit("payload", now, now.Add(time.Minute))

	assert.True(t, v.IsHit())
	assert.False(t, v.IsStale())
	assert.False(t, v.IsMiss())
}

func TestStale_StateIsMutuallyExclusive(t *testing.T) {
	now := time.Now()
	v := Stale("payload", now, now.Add(-time.Minute))

	assert.False(t, v.IsHit())
	assert.True(t, v.IsStale())
	assert.False(t, v.IsMiss())
}

func TestMiss_StateIsMutuallyExclusive(t *testing.T) {
	v := Miss()

	assert.False(t, v.IsHit())
	assert.False(t, v.IsStale())
	assert.True(t, v.IsMiss())
}

func TestValue_ReturnsPayloadForHitAndStale(t *testing.T) {
	now := time.Now()

	hit := Hit("hit-payload", now, now.Add(time.Minute))
	val, err := hit.Value()
	require.NoError(t, err)
	assert.Equal(t, "hit-payload", val)

	stale := Stale("stale-payload", now, now.Add(-time.Minute))
	val, err = stale.Value()
	require.NoError(t, err)
	assert.Equal(t, "stale-payload", val)
}

func TestValue_ErrorsOnMiss(t *testing.T) {
	v := Miss()
	_, err := v.Value()

	require.Error(t, err)
	assert.True(t, cacheerrors.IsValueAccessOnMiss(err))
}

func TestCreatedAtAndSoftExpiresAt_PreservedForHitAndStale(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	expires := time.Now().Add(time.Minute)

	v := Hit("payload", created, expires)
	assert.Equal(t, created, v.CreatedAt())
	assert.Equal(t, expires, v.SoftExpiresAt())
}
