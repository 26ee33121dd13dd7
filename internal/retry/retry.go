// Package retry runs fallible operations under an attempt-count and
// fixed-delay policy.
//
// Every higher-level operation that must tolerate an appliance rebooting or
// failing over goes through a Retrier. The retrier waits for each attempt to
// resolve before deciding to sleep and try again; it never runs attempts in
// parallel.
//
//	r := retry.New(retry.WithLogger(logger))
//	err := r.Do(ctx, "mcp-state", retry.DefaultPolicy, func(ctx context.Context) error {
//	    return probe(ctx)
//	})
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/muurk/appliancectl/internal/logging"
	"github.com/muurk/appliancectl/internal/metrics"
)

// ErrMaxAttemptsExceeded matches every error returned after a policy ran out
// of attempts.
var ErrMaxAttemptsExceeded = errors.New("exceeded max attempts")

// Policy controls how an operation is retried
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int `yaml:"max_attempts" validate:"gte=0"`

	// Delay is the wait between the end of one attempt and the start of the next.
	Delay time.Duration `yaml:"delay" validate:"gte=0"`

	// ImmediateFail propagates the first error without retrying.
	ImmediateFail bool `yaml:"immediate_fail,omitempty"`
}

// Preset policies. Device reboots and failovers take minutes, so the default
// tolerates about fifteen.
var (
	DefaultPolicy = Policy{MaxAttempts: 90, Delay: 10 * time.Second}
	MediumPolicy  = Policy{MaxAttempts: 30, Delay: 2 * time.Second}
	ShortPolicy   = Policy{MaxAttempts: 3, Delay: 300 * time.Millisecond}
	NoRetry       = Policy{MaxAttempts: 1, ImmediateFail: true}
)

// IsZero reports whether p is the zero policy.
func (p Policy) IsZero() bool {
	return p == Policy{}
}

// OrDefault returns p, or DefaultPolicy when p is the zero policy.
func (p Policy) OrDefault() Policy {
	if p.IsZero() {
		return DefaultPolicy
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return p
}

// String returns a compact description (e.g., "90x10s").
func (p Policy) String() string {
	if p.ImmediateFail {
		return "immediate-fail"
	}
	return fmt.Sprintf("%dx%s", p.MaxAttempts, p.Delay)
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if p.MaxAttempts > 1 {
		b = backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// ExhaustedError is returned when every attempt allowed by a policy failed.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error // last error returned by the operation
}

// Error implements the error interface
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: exceeded max attempts (%d): %v", e.Operation, e.Attempts, e.Err)
}

// Unwrap exposes both ErrMaxAttemptsExceeded and the last operation error.
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrMaxAttemptsExceeded, e.Err}
}

// Permanent marks err as not worth retrying. The retrier returns the wrapped
// error as-is after the attempt that produced it.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

// Retrier executes operations under a Policy.
type Retrier struct {
	immediateFail bool
	logger        *zap.Logger
}

// Option configures a Retrier
type Option func(*Retrier)

// WithImmediateFail makes every policy fail on the first error. CI and tests
// use this to turn the multi-minute tolerance windows off entirely.
func WithImmediateFail(enabled bool) Option {
	return func(r *Retrier) {
		r.immediateFail = enabled
	}
}

// WithLogger sets the logger used for per-attempt debug output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retrier) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Retrier.
func New(opts ...Option) *Retrier {
	r := &Retrier{logger: logging.Named("retry")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ImmediateFail reports whether the retrier overrides every policy with
// immediate failure.
func (r *Retrier) ImmediateFail() bool {
	return r != nil && r.immediateFail
}

// Do runs op until it succeeds or the policy gives up.
func (r *Retrier) Do(ctx context.Context, operation string, p Policy, op func(context.Context) error) error {
	_, err := Value(ctx, r, operation, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Value runs op until it succeeds or the policy gives up, returning the
// value of the successful attempt.
//
// On failure the error is, in order of precedence: the error of an attempt
// marked Permanent (or of the only attempt under immediate-fail), the context
// error when ctx ended during a wait, or an *ExhaustedError.
func Value[T any](ctx context.Context, r *Retrier, operation string, p Policy, op func(context.Context) (T, error)) (T, error) {
	if r == nil {
		r = New()
	}
	p = p.OrDefault()
	immediate := p.ImmediateFail || r.immediateFail

	attempts := 0
	stopped := false

	attempt := func() (T, error) {
		attempts++
		metrics.RetryAttempts.WithLabelValues(operation).Inc()

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if IsPermanent(err) {
			stopped = true
			return v, err
		}
		if immediate {
			stopped = true
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, next time.Duration) {
		r.logger.Debug("Attempt failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("delay", next),
			zap.Error(err),
		)
	}

	v, err := backoff.RetryNotifyWithData(attempt, p.backOff(ctx), notify)
	switch {
	case err == nil:
		metrics.RetryOutcomes.WithLabelValues(operation, "success").Inc()
		return v, nil
	case stopped:
		metrics.RetryOutcomes.WithLabelValues(operation, "stopped").Inc()
		return v, err
	case ctx.Err() != nil:
		metrics.RetryOutcomes.WithLabelValues(operation, "canceled").Inc()
		return v, fmt.Errorf("%s: canceled after %d attempt(s): %w", operation, attempts, ctx.Err())
	default:
		metrics.RetryOutcomes.WithLabelValues(operation, "exhausted").Inc()
		r.logger.Debug("Retries exhausted",
			zap.String("operation", operation),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return v, &ExhaustedError{Operation: operation, Attempts: attempts, Err: err}
	}
}
