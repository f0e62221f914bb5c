package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State of the breaker
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are rejected until Timeout elapses
	StateHalfOpen              // a limited number of trial calls pass through
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// ErrOpen is returned by Execute while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// Config breaker thresholds
type Config struct {
	// consecutive failures that open the breaker
	FailureThreshold int
	// successes in half-open that close it again
	SuccessThreshold int
	// how long the breaker stays open
	Timeout time.Duration
	// concurrent trial calls allowed while half-open
	HalfOpenMaxRequests int
}

// DefaultConfig 5 failures open for 30s, 2 successes close.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

// CircuitBreaker guards calls to a flaky dependency.
type CircuitBreaker struct {
	config Config
	now    func() time.Time

	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	halfOpenBusy int
	openedAt     time.Time
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(config Config) *CircuitBreaker {
	return &CircuitBreaker{config: config, now: time.Now, state: StateClosed}
}

// Execute runs fn unless the breaker is open. fn's error is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.config.Timeout {
		cb.state = StateHalfOpen
		cb.successes = 0
		cb.halfOpenBusy = 0
	}

	switch cb.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if cb.halfOpenBusy >= cb.config.HalfOpenMaxRequests {
			return ErrOpen
		}
		cb.halfOpenBusy++
	}
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.halfOpenBusy--
	}

	if err != nil {
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
		return
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = StateClosed
		}
	}
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.config.Timeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenBusy = 0
}
