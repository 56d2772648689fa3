package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

// State is the circuit breaker position.
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
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 60 * time.Second
)

// BreakerConfig configures a single circuit breaker.
type BreakerConfig struct {
	Name             string
	FailureThreshold int
	RecoveryTimeout  time.Duration

	// IsFailure decides which errors count against the dependency. Defaults to
	// DefaultIsFailure.
	IsFailure func(error) bool
	// OnStateChange is invoked outside the breaker lock after each transition.
	OnStateChange func(name string, from, to State)
	// OnReject is invoked when a call is short-circuited.
	OnReject func(name string)
	Now      func() time.Time
}

// Breaker guards one logical dependency. Consecutive failures trip it open;
// after RecoveryTimeout the next call is let through as a single trial.
type Breaker struct {
	cfg BreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	trialInFlight bool
}

// NewBreaker builds a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = defaultRecoveryTimeout
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = DefaultIsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// Name returns the guarded resource name.
func (b *Breaker) Name() string {
	return b.cfg.Name
}

// State returns the current position. An open breaker whose recovery timeout
// has elapsed still reports OPEN until the next call moves it to HALF_OPEN.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.trialInFlight = false
	b.mu.Unlock()
	b.notify(from, StateClosed)
}

// errPanicked is recorded when op panics; it always counts as a failure.
var errPanicked = errors.New("operation panicked")

// Execute runs op through the breaker. While open it returns a CIRCUIT_OPEN
// error without invoking op. A panic in op is recorded as a failure and then
// re-raised.
func Execute[T any](ctx context.Context, b *Breaker, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	trial, err := b.allow()
	if err != nil {
		return zero, err
	}
	defer func() {
		if r := recover(); r != nil {
			b.record(trial, errPanicked)
			panic(r)
		}
	}()
	value, err := op(ctx)
	b.record(trial, err)
	if err != nil {
		return zero, err
	}
	return value, nil
}

// Call composes a breaker around a retry policy: one exhausted retry sequence
// counts as a single breaker failure.
func Call[T any](ctx context.Context, b *Breaker, p Policy, op func(ctx context.Context) (T, error)) (T, Outcome, error) {
	var outcome Outcome
	value, err := Execute(ctx, b, func(ctx context.Context) (T, error) {
		v, out, err := Do(ctx, p, op)
		outcome = out
		return v, err
	})
	return value, outcome, err
}

func (b *Breaker) allow() (bool, error) {
	b.mu.Lock()
	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return false, nil
	case StateOpen:
		retryAt := b.lastFailure.Add(b.cfg.RecoveryTimeout)
		if b.cfg.Now().Before(retryAt) {
			b.mu.Unlock()
			return false, b.reject(retryAt)
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		b.mu.Unlock()
		b.notify(StateOpen, StateHalfOpen)
		return true, nil
	default:
		if b.trialInFlight {
			retryAt := b.lastFailure.Add(b.cfg.RecoveryTimeout)
			b.mu.Unlock()
			return false, b.reject(retryAt)
		}
		b.trialInFlight = true
		b.mu.Unlock()
		return true, nil
	}
}

func (b *Breaker) record(trial bool, err error) {
	canceled := err != nil && errors.Is(err, context.Canceled)
	failed := err != nil && !canceled && (errors.Is(err, errPanicked) || b.cfg.IsFailure(err))

	b.mu.Lock()
	from := b.state
	switch {
	case trial:
		b.trialInFlight = false
		switch {
		case canceled:
			// no verdict; the next caller becomes the trial
		case failed:
			b.state = StateOpen
			b.lastFailure = b.cfg.Now()
		default:
			b.state = StateClosed
			b.failures = 0
		}
	case b.state == StateClosed:
		switch {
		case canceled:
		case failed:
			b.failures++
			b.lastFailure = b.cfg.Now()
			if b.failures >= b.cfg.FailureThreshold {
				b.state = StateOpen
			}
		default:
			b.failures = 0
		}
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

func (b *Breaker) reject(retryAt time.Time) error {
	if b.cfg.OnReject != nil {
		b.cfg.OnReject(b.cfg.Name)
	}
	return pkgerrors.New(pkgerrors.CodeCircuitOpen, fmt.Sprintf("circuit open for %s", b.cfg.Name)).
		WithDetails(map[string]any{
			"resource": b.cfg.Name,
			"retry_at": retryAt,
		})
}

func (b *Breaker) notify(from, to State) {
	if from == to || b.cfg.OnStateChange == nil {
		return
	}
	b.cfg.OnStateChange(b.cfg.Name, from, to)
}

// IsOpen reports whether err was produced by a short-circuited call.
func IsOpen(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeCircuitOpen)
}

// DefaultIsFailure counts infrastructure faults against the dependency. Domain
// outcomes (validation, not found, insufficient stock, conflicts) mean the
// dependency answered and are not failures.
func DefaultIsFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return true
	}
	switch typed.Code() {
	case pkgerrors.CodeTransient, pkgerrors.CodeStorage, pkgerrors.CodeDependency, pkgerrors.CodeInternal:
		return true
	default:
		return false
	}
}
