package resilience

import (
	"context"
	"errors"
	"math"
	"time"
)

// Policy retries an operation with capped exponential backoff. The delay before
// attempt n+1 is min(BaseDelay * BackoffFactor^(n-1), MaxDelay).
type Policy struct {
	Name          string
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// RetryCondition decides whether a failed attempt may be retried. Nil means
	// nothing is retried.
	RetryCondition func(error) bool
	// OnRetry observes a failed attempt right before the backoff sleep.
	OnRetry func(err error, attempt int, delay time.Duration)
	// Sleep waits for d or until ctx is done. Defaults to a timer-based wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Outcome describes how an operation settled.
type Outcome struct {
	Attempts int
	Elapsed  time.Duration
}

// Delay returns the backoff applied after the given (1-based) failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(factor, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.RetryCondition == nil {
		return false
	}
	return p.RetryCondition(err)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

// Do runs op until it succeeds, the attempt budget is exhausted, the error is
// not retryable, or ctx is done. Cancellation of ctx is never retried.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, Outcome, error) {
	var zero T
	start := time.Now()
	maxAttempts := p.maxAttempts()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, Outcome{Attempts: attempt - 1, Elapsed: time.Since(start)}, err
		}

		value, err := op(ctx)
		if err == nil {
			return value, Outcome{Attempts: attempt, Elapsed: time.Since(start)}, nil
		}

		if attempt >= maxAttempts || ctx.Err() != nil || !p.shouldRetry(err) {
			return zero, Outcome{Attempts: attempt, Elapsed: time.Since(start)}, err
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(err, attempt, delay)
		}
		if serr := p.sleep(ctx, delay); serr != nil {
			return zero, Outcome{Attempts: attempt, Elapsed: time.Since(start)}, serr
		}
	}
}

// Run is Do for operations that only return an error.
func Run(ctx context.Context, p Policy, op func(ctx context.Context) error) (Outcome, error) {
	_, outcome, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return outcome, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
