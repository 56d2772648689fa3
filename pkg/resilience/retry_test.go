package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockledger/pkg/config"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func transientErr() error {
	return pkgerrors.Wrap(pkgerrors.CodeTransient, errors.New("connection reset by peer"), "load")
}

func TestPolicyBackoffSchedule(t *testing.T) {
	sleeps := &recordedSleeps{}
	var observed []int
	policy := Policy{
		MaxAttempts:    4,
		BaseDelay:      1000 * time.Millisecond,
		MaxDelay:       10000 * time.Millisecond,
		BackoffFactor:  2,
		RetryCondition: IsDatabaseRetryable,
		OnRetry: func(err error, attempt int, delay time.Duration) {
			observed = append(observed, attempt)
		},
		Sleep: sleeps.sleep,
	}

	calls := 0
	_, outcome, err := Do(context.Background(), policy, func(ctx context.Context) (int, error) {
		calls++
		return 0, transientErr()
	})

	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTransient))
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, outcome.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeps.delays)
	assert.Equal(t, []int{1, 2, 3}, observed)
}

func TestPolicyDelayIsCapped(t *testing.T) {
	policy := Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}
	assert.Equal(t, time.Second, policy.Delay(1))
	assert.Equal(t, 4*time.Second, policy.Delay(3))
	assert.Equal(t, 5*time.Second, policy.Delay(4))
	assert.Equal(t, 5*time.Second, policy.Delay(60))
}

func TestPolicySucceedsAfterTransientFailures(t *testing.T) {
	sleeps := &recordedSleeps{}
	policy := ForDatabase()
	policy.Sleep = sleeps.sleep

	calls := 0
	value, outcome, err := Do(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", transientErr()
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps.delays)
}

func TestPolicyStopsOnNonRetryable(t *testing.T) {
	for _, code := range []pkgerrors.Code{
		pkgerrors.CodeValidation,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeInsufficientStock,
		pkgerrors.CodeConflict,
		pkgerrors.CodeCircuitOpen,
		pkgerrors.CodeStorage,
	} {
		code := code
		t.Run(string(code), func(t *testing.T) {
			for _, policy := range []Policy{ForDatabase(), ForCache(), ForExternalService()} {
				sleeps := &recordedSleeps{}
				policy.Sleep = sleeps.sleep
				calls := 0
				_, outcome, err := Do(context.Background(), policy, func(ctx context.Context) (int, error) {
					calls++
					return 0, pkgerrors.New(code, "nope")
				})
				require.Error(t, err)
				assert.Equal(t, 1, calls, "policy %s", policy.Name)
				assert.Equal(t, 1, outcome.Attempts)
				assert.Empty(t, sleeps.delays)
			}
		})
	}
}

func TestPolicyAbortsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := ForDatabase()
	policy.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	calls := 0
	_, outcome, err := Do(ctx, policy, func(ctx context.Context) (int, error) {
		calls++
		return 0, transientErr()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, outcome.Attempts)
}

func TestPolicyDoesNotStartWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := Run(ctx, ForCache(), func(ctx context.Context) error {
		t.Fatal("operation must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, outcome.Attempts)
}

func TestSleepContextHonoursDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := sleepContext(ctx, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWithOverrides(t *testing.T) {
	policy := ForDatabase().WithOverrides(config.RetryConfig{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond})
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, policy.BaseDelay)
	assert.Equal(t, 10*time.Second, policy.MaxDelay)
	assert.Equal(t, 2.0, policy.BackoffFactor)
}
