// Package ratelimiter implements a process-global sliding-window throttle
// on outbound calls. There is one shared instance for the whole process;
// every tenant's outbound page fetches and notifications draw from the
// same budget.
package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a ceiling of N admitted calls per rolling window.
// It maintains the timestamps of the last up-to-N admitted requests,
// discarding anything older than now-window on every Acquire.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	stamps  []time.Time
	nowFunc func() time.Time
}

// New creates a RateLimiter admitting at most limit calls per window.
func New(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		stamps:  make([]time.Time, 0, limit),
		nowFunc: time.Now,
	}
}

// Acquire blocks until a slot is available or ctx is cancelled. On
// cancellation no slot is consumed. FIFO ordering is not guaranteed;
// starvation is bounded in practice by the window length.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := r.tryAdmit()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Recheck: another waiter may have claimed the freed slot first.
		}
	}
}

// tryAdmit evicts stale timestamps and either admits immediately (returning
// ok=true) or reports how long until the oldest entry ages out.
func (r *RateLimiter) tryAdmit() (wait time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	cutoff := now.Add(-r.window)

	i := 0
	for i < len(r.stamps) && r.stamps[i].Before(cutoff) {
		i++
	}
	r.stamps = r.stamps[i:]

	if len(r.stamps) < r.limit {
		r.stamps = append(r.stamps, now)
		return 0, true
	}

	return r.stamps[0].Add(r.window).Sub(now), false
}

// Status reports current usage for the operator-facing status endpoint.
type Status struct {
	Limit     int
	Window    time.Duration
	InFlight  int
	Remaining int
}

// Status returns a snapshot of current rate limiter usage.
func (r *RateLimiter) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	cutoff := now.Add(-r.window)
	count := 0
	for _, s := range r.stamps {
		if !s.Before(cutoff) {
			count++
		}
	}
	remaining := r.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Status{Limit: r.limit, Window: r.window, InFlight: count, Remaining: remaining}
}
