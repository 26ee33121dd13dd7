package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("device unavailable")

// fastPolicy keeps test wall time low while still exercising the waits.
func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Delay: time.Millisecond}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := New().Do(context.Background(), "op", fastPolicy(5), func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := New().Do(context.Background(), "op", fastPolicy(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := New().Do(context.Background(), "mcp-state", fastPolicy(4), func(context.Context) error {
		calls++
		return errFlaky
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, ErrMaxAttemptsExceeded)
	assert.ErrorIs(t, err, errFlaky)
	assert.Contains(t, err.Error(), "exceeded max attempts")

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Equal(t, "mcp-state", exhausted.Operation)
}

func TestDoSingleAttemptPolicyExhausts(t *testing.T) {
	calls := 0
	err := New().Do(context.Background(), "op", Policy{MaxAttempts: 1}, func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ErrMaxAttemptsExceeded)
}

func TestPolicyImmediateFailInvokesOnce(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 10, Delay: time.Hour, ImmediateFail: true}

	err := New().Do(context.Background(), "op", p, func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, errFlaky, err)
	assert.NotErrorIs(t, err, ErrMaxAttemptsExceeded)
}

func TestRetrierImmediateFailOverridesPolicy(t *testing.T) {
	calls := 0
	r := New(WithImmediateFail(true))
	require.True(t, r.ImmediateFail())

	err := r.Do(context.Background(), "op", DefaultPolicy, func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, errFlaky)
}

func TestNoRetryPreset(t *testing.T) {
	calls := 0
	err := New().Do(context.Background(), "op", NoRetry, func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, errFlaky, err)
}

func TestPermanentStopsRetrying(t *testing.T) {
	calls := 0
	err := New().Do(context.Background(), "op", fastPolicy(10), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, errFlaky, err)
	assert.False(t, IsPermanent(err))
}

func TestValueReturnsSuccessfulResult(t *testing.T) {
	calls := 0
	got, err := Value(context.Background(), New(), "op", fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errFlaky
		}
		return "running", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "running", got)
	assert.Equal(t, 2, calls)
}

func TestValueNilRetrier(t *testing.T) {
	got, err := Value(context.Background(), nil, "op", fastPolicy(1), func(context.Context) (int, error) {
		return 7, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestDoCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := New().Do(ctx, "op", Policy{MaxAttempts: 100, Delay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errFlaky
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrMaxAttemptsExceeded)
}

func TestAttemptsAreSequential(t *testing.T) {
	running := 0
	maxRunning := 0
	calls := 0

	err := New().Do(context.Background(), "op", fastPolicy(5), func(context.Context) error {
		running++
		if running > maxRunning {
			maxRunning = running
		}
		time.Sleep(time.Millisecond)
		running--
		calls++
		if calls < 5 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, maxRunning)
}

func TestPolicyOrDefault(t *testing.T) {
	assert.Equal(t, DefaultPolicy, Policy{}.OrDefault())
	assert.Equal(t, 1, Policy{Delay: time.Second}.OrDefault().MaxAttempts)
	assert.Equal(t, ShortPolicy, ShortPolicy.OrDefault())
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "90x10s", DefaultPolicy.String())
	assert.Equal(t, "immediate-fail", NoRetry.String())
}
