package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := New(Settings{Name: "test", FailureThreshold: 2, MaxHalfOpenRequests: 1, Interval: time.Minute, Timeout: time.Minute})
	boom := errors.New("boom")

	require.ErrorIs(t, b.Do(func() error { return boom }), boom)
	assert.False(t, b.Open())
	require.ErrorIs(t, b.Do(func() error { return boom }), boom)
	assert.True(t, b.Open())

	called := false
	err := b.Do(func() error { called = true; return nil })
	require.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := New(Settings{Name: "test", FailureThreshold: 1, Interval: time.Minute, Timeout: time.Minute})
	_ = b.Do(func() error { return context.Canceled })
	assert.False(t, b.Open())
	assert.Equal(t, "closed", b.State())
}

func TestNilBreakerPassesThrough(t *testing.T) {
	var b *Breaker
	called := false
	require.NoError(t, b.Do(func() error { called = true; return nil }))
	assert.True(t, called)
	assert.False(t, b.Open())
}
