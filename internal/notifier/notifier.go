// Package notifier dispatches best-effort notifications for high-urgency
// tickets on a bounded worker pool whose lifetime is tied to the process,
// not to any one ingestion run. Each registered Sink is gated by its own
// named circuit breaker and by the shared process-wide rate limiter.
package notifier

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ticketsync/backend/internal/breaker"
	"github.com/ticketsync/backend/internal/model"
	"github.com/ticketsync/backend/internal/ratelimiter"
	"github.com/ticketsync/backend/internal/telemetry"
)

const (
	maxSendAttempts = 3
	sendBackoffCap  = 8 * time.Second
	sendTimeout     = 10 * time.Second
	taskQueueSize   = 256
	workerCount     = 4
)

// Task describes one high-urgency ticket that needs an outbound notification.
type Task struct {
	TenantID string
	Ticket   model.Ticket
}

// Sink delivers one notification task through a specific downstream
// channel (webhook, Slack, ...). A non-2xx HTTP response must be returned
// as a *SendError carrying the status code so dispatch can tell a transient
// failure from a permanent one; a plain error (network failure, timeout) is
// treated as always transient and always a breaker failure.
type Sink interface {
	Name() string
	Send(ctx context.Context, t Task) error
}

// SendError is returned by a Sink when the downstream responded with a
// non-2xx HTTP status, so dispatch can classify the outcome instead of
// treating every failure the same way.
type SendError struct {
	StatusCode int
	Err        error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.StatusCode)
}

func (e *SendError) Unwrap() error { return e.Err }

// isBreakerFailure reports whether err should count against the sink's
// circuit breaker. Per the breaker's contract, a failure is any timeout,
// connection error, or HTTP status >= 500; HTTP 4xx (including 429) never
// counts, since 429 is the rate limiter's domain and other 4xx are
// permanent client errors the breaker can do nothing about.
func isBreakerFailure(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}

// isRetryable reports whether dispatch should retry the send: 5xx,
// timeouts, and network errors are transient, and so is 429 (the spec
// calls it out explicitly even though it is not a breaker failure). Any
// other 4xx is a permanent client error and fails immediately.
func isRetryable(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// Pool owns a fixed set of workers draining a shared task queue. Enqueue
// never blocks the caller on the notification actually landing; a full
// queue drops the task and logs it, since a dashboard notification is not
// allowed to hold up ticket ingestion.
type Pool struct {
	logger   *slog.Logger
	limiter  *ratelimiter.RateLimiter
	breakers *breaker.Registry
	sinks    []Sink

	tasks  chan Task
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

// New creates a Pool and starts its workers. Call Close to drain and stop
// them during graceful shutdown.
func New(logger *slog.Logger, limiter *ratelimiter.RateLimiter, breakers *breaker.Registry, sinks ...Sink) *Pool {
	p := &Pool{
		logger:   logger,
		limiter:  limiter,
		breakers: breakers,
		sinks:    sinks,
		tasks:    make(chan Task, taskQueueSize),
		done:     make(chan struct{}),
	}
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Enqueue submits a task for best-effort delivery to every registered
// sink. It never blocks the ingestion path; if the queue is full the task
// is dropped and logged.
func (p *Pool) Enqueue(t Task) {
	select {
	case p.tasks <- t:
	default:
		p.logger.Warn("notifier queue full, dropping notification",
			"tenant_id", t.TenantID, "external_id", t.Ticket.ExternalID)
	}
}

// Close stops accepting new work and waits for in-flight sends to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		for _, sink := range p.sinks {
			p.dispatch(t, sink)
		}
	}
}

// dispatch gates one sink send behind that sink's circuit breaker and the
// shared rate limiter, retrying transient failures with bounded backoff.
func (p *Pool) dispatch(t Task, sink Sink) {
	br := p.breakers.Get(sink.Name())
	if !br.Admit() {
		telemetry.NotificationsTotal.WithLabelValues(sink.Name(), "breaker_open").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := p.limiter.Acquire(ctx); err != nil {
		// A local rate-limiter timeout never reaches the downstream at all,
		// so it is neither a success nor a breaker-counted failure.
		telemetry.NotificationsTotal.WithLabelValues(sink.Name(), "rate_limit_timeout").Inc()
		return
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = sendBackoffCap

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		sendErr := sink.Send(ctx, t)
		if sendErr != nil && !isRetryable(sendErr) {
			return struct{}{}, backoff.Permanent(sendErr)
		}
		return struct{}{}, sendErr
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxSendAttempts))

	switch {
	case err == nil:
		br.Report(true)
		telemetry.NotificationsTotal.WithLabelValues(sink.Name(), "success").Inc()
	case isBreakerFailure(err):
		br.Report(false)
		telemetry.NotificationsTotal.WithLabelValues(sink.Name(), "failure").Inc()
		p.logger.Warn("notification send failed",
			"sink", sink.Name(), "tenant_id", t.TenantID,
			"external_id", t.Ticket.ExternalID, "error", err)
	default:
		// HTTP 4xx (including 429): not a breaker failure, per spec.
		label := "client_error"
		var se *SendError
		if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
			label = "rate_limited"
		}
		telemetry.NotificationsTotal.WithLabelValues(sink.Name(), label).Inc()
		p.logger.Warn("notification send rejected",
			"sink", sink.Name(), "tenant_id", t.TenantID,
			"external_id", t.Ticket.ExternalID, "error", err)
	}
}
