package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreaker trips open once more than maxFailures failures land inside
// the sliding window. While open, calls go to the fallback; after the
// cooldown a single probe call is let through.
type CircuitBreaker struct {
	maxFailures int
	window      time.Duration
	cooldown    time.Duration

	mu          sync.Mutex
	state       State
	failures    []time.Time
	lastFailure time.Time
}

func New(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return NewWithWindow(maxFailures, cooldown, 60*time.Second)
}

func NewWithWindow(maxFailures int, cooldown, window time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: maxFailures,
		window:      window,
		cooldown:    cooldown,
		state:       StateClosed,
		failures:    make([]time.Time, 0),
	}
}

func (cb *CircuitBreaker) Execute(fn func() error, fallback func() error) error {
	if !cb.allow() {
		if fallback != nil {
			return fallback()
		}
		return ErrOpen
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFailure) < cb.cooldown {
			return false
		}
		cb.state = StateHalfOpen
		cb.failures = cb.failures[:0]
	}
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	if err != nil {
		cb.lastFailure = now
		cb.failures = append(cb.failures, now)
		cb.pruneOld(now)
		if len(cb.failures) > cb.maxFailures || cb.state == StateHalfOpen {
			cb.state = StateOpen
		}
		return
	}

	cb.pruneOld(now)
	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.failures = cb.failures[:0]
	}
}

func (cb *CircuitBreaker) pruneOld(now time.Time) {
	cutoff := now.Add(-cb.window)
	kept := cb.failures[:0]
	for _, t := range cb.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.failures = kept
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
