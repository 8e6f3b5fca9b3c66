package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_TripsAfterFiveFailuresInWindow(t *testing.T) {
	b := New("test")

	for i := 0; i < 5; i++ {
		require.True(t, b.Admit())
		b.Report(false)
	}
	for i := 0; i < 5; i++ {
		require.True(t, b.Admit())
		b.Report(true)
	}

	assert.Equal(t, Open, b.Status().State)
}

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	b := New("test")

	for i := 0; i < 4; i++ {
		b.Admit()
		b.Report(false)
	}
	for i := 0; i < 6; i++ {
		b.Admit()
		b.Report(true)
	}

	assert.Equal(t, Closed, b.Status().State)
}

func TestBreaker_OpenRejectsUntilTimeout(t *testing.T) {
	b := New("test")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.nowFunc = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		b.Admit()
		b.Report(false)
	}
	require.Equal(t, Open, b.Status().State)
	assert.False(t, b.Admit())

	now = now.Add(openTimeout + time.Second)
	assert.True(t, b.Admit(), "should transition to half-open after timeout")
	assert.Equal(t, HalfOpen, b.Status().State)
}

func TestBreaker_HalfOpenSingleTrial(t *testing.T) {
	b := New("test")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.nowFunc = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		b.Admit()
		b.Report(false)
	}
	now = now.Add(openTimeout + time.Second)

	assert.True(t, b.Admit())
	assert.False(t, b.Admit(), "a second concurrent trial must not be admitted")
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New("test")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.nowFunc = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		b.Admit()
		b.Report(false)
	}
	now = now.Add(openTimeout + time.Second)
	b.Admit()
	b.Report(true)

	assert.Equal(t, Closed, b.Status().State)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("test")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.nowFunc = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		b.Admit()
		b.Report(false)
	}
	now = now.Add(openTimeout + time.Second)
	b.Admit()
	b.Report(false)

	assert.Equal(t, Open, b.Status().State)
}

func TestBreaker_Reset(t *testing.T) {
	b := New("test")
	for i := 0; i < 10; i++ {
		b.Admit()
		b.Report(false)
	}
	require.Equal(t, Open, b.Status().State)

	b.Reset()
	assert.Equal(t, Closed, b.Status().State)
	assert.Equal(t, 0, b.Status().FailureCount)
}

func TestBreaker_OnTripCallback(t *testing.T) {
	b := New("notify")
	tripped := false
	b.OnTrip(func(name string) {
		tripped = true
		assert.Equal(t, "notify", name)
	})

	for i := 0; i < 10; i++ {
		b.Admit()
		b.Report(false)
	}
	assert.True(t, tripped)
}

func TestRegistry_GetCreatesOnFirstUse(t *testing.T) {
	r := NewRegistry()
	b1 := r.Get("webhook")
	b2 := r.Get("webhook")
	assert.Same(t, b1, b2)

	all := r.All()
	require.Len(t, all, 1)
	assert.Equal(t, "webhook", all[0].Name)
}
