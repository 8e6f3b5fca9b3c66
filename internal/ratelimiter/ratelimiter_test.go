package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AdmitsUpToLimit(t *testing.T) {
	r := New(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Acquire(ctx))
	}

	status := r.Status()
	assert.Equal(t, 3, status.InFlight)
	assert.Equal(t, 0, status.Remaining)
}

func TestRateLimiter_BlocksBeyondLimitUntilWindowSlides(t *testing.T) {
	r := New(1, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, r.Acquire(ctx))

	start := time.Now()
	require.NoError(t, r.Acquire(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestRateLimiter_CancellationDoesNotConsumeSlot(t *testing.T) {
	r := New(1, time.Hour)
	ctx := context.Background()
	require.NoError(t, r.Acquire(ctx))

	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()

	err := r.Acquire(cancelCtx)
	assert.Error(t, err)

	status := r.Status()
	assert.Equal(t, 1, status.InFlight)
}

func TestRateLimiter_StatusReflectsEviction(t *testing.T) {
	r := New(2, 30*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, r.Acquire(ctx))

	time.Sleep(50 * time.Millisecond)

	status := r.Status()
	assert.Equal(t, 0, status.InFlight)
	assert.Equal(t, 2, status.Remaining)
}
