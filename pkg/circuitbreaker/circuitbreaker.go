package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without calling the protected function while the
// breaker is open or its half-open probe budget is spent.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Config struct {
	FailureThreshold    int           // consecutive failures that open the breaker
	SuccessThreshold    int           // half-open successes that close it again
	OpenTimeout         time.Duration // how long to stay open before probing
	MaxRequestsHalfOpen int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		OpenTimeout:         30 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
}

type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	inFlight  int
	openedAt  time.Time

	onStateChange func(from, to State)
}

func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.MaxRequestsHalfOpen <= 0 {
		cfg.MaxRequestsHalfOpen = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// OnStateChange registers fn to run synchronously after every transition.
// fn must not call back into the breaker.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Execute runs fn unless the breaker is open. fn's error is returned as is.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.acquire(); err != nil {
		return err
	}
	err := fn()
	cb.release(err == nil)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refreshLocked()
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setStateLocked(StateClosed)
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.refreshLocked()
	switch cb.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.cfg.MaxRequestsHalfOpen {
			return ErrOpen
		}
		cb.inFlight++
	}
	return nil
}

func (cb *CircuitBreaker) release(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}

	if !ok {
		cb.successes = 0
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
			cb.setStateLocked(StateOpen)
		}
		return
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.setStateLocked(StateClosed)
		}
	}
}

// refreshLocked moves an open breaker to half-open once OpenTimeout passed.
func (cb *CircuitBreaker) refreshLocked() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.OpenTimeout {
		cb.setStateLocked(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) setStateLocked(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	cb.inFlight = 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}
