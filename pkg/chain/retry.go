package chain

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls how often a failing handler is re-invoked.
type RetryPolicy struct {
	// MaxAttempts counts the first invocation; 1 means no retries.
	MaxAttempts int `yaml:"max_attempts"`
	// Delay is the wait before the first retry.
	Delay time.Duration `yaml:"delay"`
	// Multiplier grows the delay per retry; values <= 1 keep it fixed.
	Multiplier float64 `yaml:"multiplier"`
	// MaxDelay caps the computed delay when positive.
	MaxDelay time.Duration `yaml:"max_delay"`
	// Jitter randomises each delay within [0, delay].
	Jitter bool `yaml:"jitter"`
	// ShouldRetry filters retryable errors; nil means DefaultShouldRetry.
	ShouldRetry func(error) bool `yaml:"-"`
}

// DelayForAttempt returns the wait before retry n (0-indexed):
// Delay * Multiplier^n, capped at MaxDelay and never beyond the largest
// representable Duration.
func (p RetryPolicy) DelayForAttempt(n int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	d := float64(p.Delay)
	if p.Multiplier > 1 {
		d *= math.Pow(p.Multiplier, float64(n))
	}
	if p.MaxDelay > 0 {
		d = math.Min(d, float64(p.MaxDelay))
	}
	// float64(math.MaxInt64) rounds up to 2^63, which no longer fits.
	if d >= math.MaxInt64 {
		d = math.MaxInt64
	}
	if p.Jitter {
		d = rand.Float64() * d
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(int64(d))
}

func (p RetryPolicy) retryable(err error) bool {
	if p.ShouldRetry != nil {
		return p.ShouldRetry(err)
	}
	return DefaultShouldRetry(err)
}

// DefaultShouldRetry retries every error except permanent ones and
// cancellation of the surrounding execution.
func DefaultShouldRetry(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// RetryStrategy re-invokes failing handlers according to Policy and hands
// the failure to Base once retries are exhausted, refused or interrupted.
type RetryStrategy struct {
	Base   Strategy
	Policy RetryPolicy
	Logger *slog.Logger
}

func (s *RetryStrategy) Resolve(ctx context.Context, h Handler, pctx *Context, failure *HandlerError) (Verdict, error) {
	policy := s.Policy
	if r, ok := h.(Retrier); ok {
		if p := r.RetryPolicy(); p != nil {
			policy = *p
		}
	}
	if failure.Attempt >= policy.MaxAttempts || !policy.retryable(failure.Err) || ctx.Err() != nil {
		return s.Base.Resolve(ctx, h, pctx, failure)
	}

	delay := policy.DelayForAttempt(failure.Attempt - 1)
	s.logger().Debug("retrying handler",
		"execution_id", pctx.ExecutionID(),
		"handler", failure.Handler,
		"attempt", failure.Attempt,
		"max_attempts", policy.MaxAttempts,
		"delay", delay)
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			s.logger().Warn("retry wait interrupted",
				"handler", failure.Handler, "error", ctx.Err())
			return s.Base.Resolve(ctx, h, pctx, failure)
		case <-timer.C:
		}
	}
	return Retry, nil
}

func (s *RetryStrategy) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
