package notifier

import (
	"context"
	"errors"
	"log/slog"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketsync/backend/internal/breaker"
	"github.com/ticketsync/backend/internal/model"
	"github.com/ticketsync/backend/internal/ratelimiter"
)

type fakeSink struct {
	name    string
	calls   atomic.Int32
	failN   int32
	delay   time.Duration
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Send(ctx context.Context, t Task) error {
	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if n <= f.failN {
		return errors.New("simulated transient failure")
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPool_DeliversToSink(t *testing.T) {
	sink := &fakeSink{name: "test-sink"}
	limiter := ratelimiter.New(100, time.Minute)
	breakers := breaker.NewRegistry()

	p := New(testLogger(), limiter, breakers, sink)
	defer p.Close()

	p.Enqueue(Task{TenantID: "t1", Ticket: model.Ticket{ExternalID: "e1"}})

	require.Eventually(t, func() bool {
		return sink.calls.Load() >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestPool_RetriesTransientFailureThenSucceeds(t *testing.T) {
	sink := &fakeSink{name: "flaky", failN: 2}
	limiter := ratelimiter.New(100, time.Minute)
	breakers := breaker.NewRegistry()

	p := New(testLogger(), limiter, breakers, sink)
	defer p.Close()

	p.Enqueue(Task{TenantID: "t1", Ticket: model.Ticket{ExternalID: "e1"}})

	require.Eventually(t, func() bool {
		return sink.calls.Load() == 3
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, breaker.Closed, breakers.Get("flaky").Status().State)
}

func TestPool_CloseDrainsInFlightWork(t *testing.T) {
	sink := &fakeSink{name: "slow", delay: 20 * time.Millisecond}
	limiter := ratelimiter.New(100, time.Minute)
	breakers := breaker.NewRegistry()

	p := New(testLogger(), limiter, breakers, sink)
	p.Enqueue(Task{TenantID: "t1", Ticket: model.Ticket{ExternalID: "e1"}})

	p.Close()
	assert.Equal(t, int32(1), sink.calls.Load())
}
