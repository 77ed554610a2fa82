package circuitbreaker

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

const defaultHalfOpenProbes = 3

// CircuitBreaker guards calls to an outbound dependency such as the push
// provider. Consecutive failures open the circuit; after the timeout a few
// probe calls decide whether it closes again.
type CircuitBreaker struct {
	name           string
	maxFailures    uint32
	timeout        time.Duration
	halfOpenProbes uint32
	isFailure      func(error) bool
	logger         *logrus.Logger

	cb       *gobreaker.CircuitBreaker
	requests atomic.Uint64
	rejected atomic.Uint64
}

// Option configures a CircuitBreaker
type Option func(*CircuitBreaker)

// WithLogger replaces the default logger
func WithLogger(logger *logrus.Logger) Option {
	return func(cb *CircuitBreaker) {
		if logger != nil {
			cb.logger = logger
		}
	}
}

// WithHalfOpenProbes sets how many successful probes close the circuit.
// It is also the number of probes allowed in flight while half-open.
func WithHalfOpenProbes(n uint32) Option {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.halfOpenProbes = n
		}
	}
}

// WithFailurePredicate decides which errors count against the circuit.
// Errors it rejects are returned to the caller without tripping.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) {
		if fn != nil {
			cb.isFailure = fn
		}
	}
}

// New creates a closed circuit breaker
func New(name string, maxFailures uint32, timeout time.Duration, opts ...Option) *CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = 1
	}
	cb := &CircuitBreaker{
		name:           name,
		maxFailures:    maxFailures,
		timeout:        timeout,
		halfOpenProbes: defaultHalfOpenProbes,
		isFailure:      func(err error) bool { return err != nil },
		logger:         logrus.New(),
	}
	for _, opt := range opts {
		opt(cb)
	}

	cb.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cb.halfOpenProbes,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cb.maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !cb.isFailure(err)
		},
		OnStateChange: cb.logStateChange,
	})
	return cb
}

// Execute runs fn when the circuit allows it. A rejected call returns a
// *CircuitBreakerError without invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	cb.requests.Add(1)

	_, err := cb.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		cb.rejected.Add(1)
		return &CircuitBreakerError{Name: cb.name, State: cb.State()}
	}
	return err
}

func (cb *CircuitBreaker) logStateChange(name string, from, to gobreaker.State) {
	entry := cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": name,
		"from":            fromGobreaker(from).String(),
		"state":           fromGobreaker(to).String(),
	})
	if to == gobreaker.StateOpen {
		entry.Warn("Circuit breaker opened due to failures")
	} else {
		entry.Info("Circuit breaker state changed")
	}
}

// State returns the current state, moving an expired open circuit to half-open
func (cb *CircuitBreaker) State() State {
	return fromGobreaker(cb.cb.State())
}

// Stats returns a snapshot of the breaker counters. Failures is the current
// run of consecutive failures and resets whenever the state changes.
func (cb *CircuitBreaker) Stats() Stats {
	counts := cb.cb.Counts()
	return Stats{
		Name:     cb.name,
		State:    cb.State(),
		Failures: counts.ConsecutiveFailures,
		Requests: cb.requests.Load(),
		Rejected: cb.rejected.Load(),
	}
}

type Stats struct {
	Name     string
	State    State
	Failures uint32
	Requests uint64
	Rejected uint64
}

// CircuitBreakerError is returned when a call is rejected
type CircuitBreakerError struct {
	Name  string
	State State
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

// IsCircuitBreakerError reports whether err, or anything it wraps, is a rejection
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return stderrors.As(err, &cbErr)
}
