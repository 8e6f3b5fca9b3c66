// Package breaker implements a named, process-local circuit breaker state
// machine guarding the notification egress. States: CLOSED, OPEN,
// HALF_OPEN, transitioning on a sliding window of the last 10 outcomes and
// a 30-second open timer.
package breaker

import (
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

const (
	windowSize      = 10
	failureThresh   = 5
	openTimeout     = 30 * time.Second
)

// Breaker is a single named circuit breaker instance.
type Breaker struct {
	mu sync.Mutex

	name        string
	state       State
	outcomes    []bool // true = success
	openedAt    time.Time
	trialInFlight bool
	nowFunc     func() time.Time
	onTrip      func(name string)
}

// New creates a Breaker in the CLOSED state.
func New(name string) *Breaker {
	return &Breaker{
		name:    name,
		state:   Closed,
		nowFunc: time.Now,
	}
}

// OnTrip registers a callback invoked every time the breaker transitions
// into OPEN (used to increment a metric).
func (b *Breaker) OnTrip(fn func(name string)) {
	b.mu.Lock()
	b.onTrip = fn
	b.mu.Unlock()
}

// rejected is the error type behind ErrOpen.
type rejected struct{}

func (rejected) Error() string { return "breaker: open, call rejected" }

// ErrOpen is a sentinel error describing a fast-failed call. Admit reports
// rejection by returning false; no method of Breaker returns ErrOpen.
var ErrOpen error = rejected{}

// Admit decides whether to let a call through. Call Report with the
// outcome of any admitted call exactly once.
func (b *Breaker) Admit() (admit bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.nowFunc().Sub(b.openedAt) >= openTimeout {
			b.state = HalfOpen
			b.trialInFlight = true
			return true
		}
		return false
	case HalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return false
	}
}

// Report records the outcome of an admitted call and applies the breaker's
// transition rules.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.trialInFlight = false
		if success {
			b.state = Closed
			b.outcomes = nil
		} else {
			b.trip()
		}
	case Closed:
		b.outcomes = append(b.outcomes, success)
		if len(b.outcomes) > windowSize {
			b.outcomes = b.outcomes[len(b.outcomes)-windowSize:]
		}
		if len(b.outcomes) == windowSize && b.failureCount() >= failureThresh {
			b.trip()
		}
	case Open:
		// A report arriving after the breaker already re-opened is stale; ignore.
	}
}

// trip must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.nowFunc()
	b.trialInFlight = false
	if b.onTrip != nil {
		b.onTrip(b.name)
	}
}

func (b *Breaker) failureCount() int {
	n := 0
	for _, ok := range b.outcomes {
		if !ok {
			n++
		}
	}
	return n
}

// Status is the observable snapshot exposed by the status operation.
type Status struct {
	Name            string
	State           State
	FailureCount    int
	WindowSize      int
	TimeSinceOpen   time.Duration
}

// Status returns the current observable state of the breaker.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	var since time.Duration
	if b.state == Open || (b.state == HalfOpen && !b.openedAt.IsZero()) {
		since = b.nowFunc().Sub(b.openedAt)
	}
	return Status{
		Name:          b.name,
		State:         b.state,
		FailureCount:  b.failureCount(),
		WindowSize:    len(b.outcomes),
		TimeSinceOpen: since,
	}
}

// Reset forces the breaker back to CLOSED with an empty window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.outcomes = nil
	b.trialInFlight = false
}

// Registry is a process-wide set of named breakers, e.g. one per
// downstream notification sink.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty breaker registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

// Get returns the named breaker, creating it in the CLOSED state on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = New(name)
		r.breakers[name] = b
	}
	return b
}

// All returns a snapshot of every registered breaker's status.
func (r *Registry) All() []Status {
	r.mu.Lock()
	names := make([]string, 0, len(r.breakers))
	for n := range r.breakers {
		names = append(names, n)
	}
	breakers := make([]*Breaker, 0, len(names))
	for _, n := range names {
		breakers = append(breakers, r.breakers[n])
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Status())
	}
	return out
}
