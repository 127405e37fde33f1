// Package circuitbreaker protects a Vault's remote dependencies — the
// Qdrant replica and the embedding provider — from cascading failure: once
// a dependency trips enough consecutive errors, calls fail fast instead of
// piling up behind a dead connection, giving it room to recover.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"vaultmemory/internal/logging"
)

// State is one of the three circuit positions a dependency can be in.
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

// Config tunes one breaker instance. Every Vault remote dependency (replica
// writes, replica reads, embedding calls) gets its own breaker and its own
// Config, since a flaky embedding provider shouldn't trip the replica's
// breaker or vice versa.
type Config struct {
	// Name identifies the protected dependency in logs and Stats — e.g.
	// "replica" or "embedding". Left blank, it just logs as "breaker".
	Name string
	// FailureThreshold is the number of failures before opening the circuit
	FailureThreshold int
	// SuccessThreshold is the number of successes in half-open state before closing
	SuccessThreshold int
	// Timeout is the duration the circuit stays open before switching to half-open
	Timeout time.Duration
	// MaxConcurrentRequests in half-open state
	MaxConcurrentRequests int
	// OnStateChange is called when the circuit state changes. Left nil, the
	// breaker logs the transition itself through the package's own
	// structured logger instead of requiring every call site to wire one.
	OnStateChange func(from, to State)
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold:      5,
		SuccessThreshold:      2,
		Timeout:               30 * time.Second,
		MaxConcurrentRequests: 1,
	}
}

// CircuitBreaker implements the circuit breaker pattern around a single
// remote dependency.
type CircuitBreaker struct {
	config *Config

	state           int32 // atomic State
	lastFailureTime int64 // atomic time.Time as unix nano

	consecutiveFailures int32
	consecutiveSuccesses int32
	halfOpenRequests      int32

	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64
	totalRejections int64
}

// New creates a circuit breaker from cfg, or DefaultConfig if cfg is nil.
func New(cfg *Config) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &CircuitBreaker{config: cfg, state: int32(StateClosed)}
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	return cb.ExecuteWithFallback(ctx, fn, nil)
}

// ExecuteWithFallback runs fn with circuit breaker protection, routing
// through fallback whenever the circuit rejects the call outright or fn
// itself fails — the replica's read path uses this to degrade to an empty
// result instead of propagating the error to the Hot/Cold race.
func (cb *CircuitBreaker) ExecuteWithFallback(ctx context.Context, fn func(context.Context) error, fallback func(context.Context, error) error) error {
	if cbErr := cb.canExecute(); cbErr != nil {
		atomic.AddInt64(&cb.totalRejections, 1)
		if fallback != nil {
			return fallback(ctx, cbErr)
		}
		return cbErr
	}

	atomic.AddInt64(&cb.totalRequests, 1)
	err := fn(ctx)
	cb.recordResult(err)

	if err != nil && fallback != nil {
		return fallback(ctx, err)
	}
	return err
}

// canExecute decides whether a call is allowed through in the breaker's
// current state.
func (cb *CircuitBreaker) canExecute() error {
	switch state := cb.getState(); state {
	case StateClosed:
		return nil

	case StateOpen:
		if cb.shouldTransitionToHalfOpen() {
			cb.transitionTo(StateHalfOpen)
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		current := atomic.AddInt32(&cb.halfOpenRequests, 1)
		if current > int32(cb.config.MaxConcurrentRequests) {
			atomic.AddInt32(&cb.halfOpenRequests, -1)
			return ErrTooManyConcurrentRequests
		}
		return nil

	default:
		return fmt.Errorf("circuitbreaker: unknown state %v", state)
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	state := cb.getState()
	if err != nil {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}
	if state == StateHalfOpen {
		atomic.AddInt32(&cb.halfOpenRequests, -1)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	atomic.AddInt64(&cb.totalSuccesses, 1)

	switch cb.getState() {
	case StateClosed:
		atomic.StoreInt32(&cb.consecutiveFailures, 0)
	case StateHalfOpen:
		successes := atomic.AddInt32(&cb.consecutiveSuccesses, 1)
		if successes >= int32(cb.config.SuccessThreshold) {
			cb.transitionTo(StateClosed)
		}
	case StateOpen:
		// successes don't matter until the timeout elapses and the next
		// call re-probes via half-open
	}
}

func (cb *CircuitBreaker) recordFailure() {
	atomic.AddInt64(&cb.totalFailures, 1)
	atomic.StoreInt64(&cb.lastFailureTime, time.Now().UnixNano())

	switch cb.getState() {
	case StateClosed:
		failures := atomic.AddInt32(&cb.consecutiveFailures, 1)
		if failures >= int32(cb.config.FailureThreshold) {
			cb.transitionTo(StateOpen)
		}
	case StateOpen:
		// already tripped
	case StateHalfOpen:
		// a single failure during the probe reopens the circuit
		cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) shouldTransitionToHalfOpen() bool {
	lastFailure := atomic.LoadInt64(&cb.lastFailureTime)
	if lastFailure == 0 {
		return true
	}
	return time.Since(time.Unix(0, lastFailure)) >= cb.config.Timeout
}

func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := State(atomic.SwapInt32(&cb.state, int32(newState)))
	if oldState == newState {
		return
	}

	switch newState {
	case StateClosed:
		atomic.StoreInt32(&cb.consecutiveFailures, 0)
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
	case StateOpen:
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
	case StateHalfOpen:
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
		atomic.StoreInt32(&cb.halfOpenRequests, 0)
	}

	cb.notifyStateChange(oldState, newState)
}

// notifyStateChange calls the configured OnStateChange, or logs the
// transition itself through logging.ResilienceLogger when the caller left
// it nil — most Vault breakers don't bother wiring a handler for this.
func (cb *CircuitBreaker) notifyStateChange(from, to State) {
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
		return
	}
	name := cb.config.Name
	if name == "" {
		name = "breaker"
	}
	logging.ResilienceLogger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
}

func (cb *CircuitBreaker) getState() State {
	return State(atomic.LoadInt32(&cb.state))
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	return cb.getState()
}

// Stats holds a snapshot of a breaker's counters.
type Stats struct {
	Name              string
	State             State
	TotalRequests     int64
	TotalFailures     int64
	TotalSuccesses    int64
	TotalRejections   int64
	FailureRate       float64
	LastFailureTime   time.Time
	ConsecutiveErrors int32
}

// GetStats returns a snapshot of the breaker's current counters.
func (cb *CircuitBreaker) GetStats() Stats {
	requests := atomic.LoadInt64(&cb.totalRequests)
	failures := atomic.LoadInt64(&cb.totalFailures)

	var failureRate float64
	if requests > 0 {
		failureRate = float64(failures) / float64(requests)
	}

	var lastFailureTime time.Time
	if nano := atomic.LoadInt64(&cb.lastFailureTime); nano > 0 {
		lastFailureTime = time.Unix(0, nano)
	}

	return Stats{
		Name:              cb.config.Name,
		State:             cb.getState(),
		TotalRequests:     requests,
		TotalFailures:     failures,
		TotalSuccesses:    atomic.LoadInt64(&cb.totalSuccesses),
		TotalRejections:   atomic.LoadInt64(&cb.totalRejections),
		FailureRate:       failureRate,
		LastFailureTime:   lastFailureTime,
		ConsecutiveErrors: atomic.LoadInt32(&cb.consecutiveFailures),
	}
}

// Reset forces the breaker back to closed, clearing the consecutive and
// half-open counters (the lifetime request/failure/success/rejection
// totals are kept) — used
// by tests and by an operator-triggered recovery, never by the breaker
// itself.
func (cb *CircuitBreaker) Reset() {
	atomic.StoreInt32(&cb.state, int32(StateClosed))
	atomic.StoreInt32(&cb.consecutiveFailures, 0)
	atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
	atomic.StoreInt32(&cb.halfOpenRequests, 0)
	atomic.StoreInt64(&cb.lastFailureTime, 0)
}

var (
	ErrCircuitOpen               = errors.New("circuit breaker is open")
	ErrTooManyConcurrentRequests = errors.New("too many concurrent requests in half-open state")
)
