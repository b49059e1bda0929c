// Package engine implements the execution core: the retry executor, the
// condition evaluator, template interpolation, event-flow matching, the flow
// step executor and the automation action interpreter.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/orchehq/orchepy/model"
)

// maxRetryDelay caps every sleep between attempts.
const maxRetryDelay = 60 * time.Second

// RetryPolicy bounds a fallible operation to a number of attempts with fixed
// or exponential backoff between them.
type RetryPolicy struct {
	MaxAttempts  int
	Backoff      model.BackoffStrategy
	InitialDelay time.Duration
}

// FixedPolicy is a policy with a constant delay between attempts.
func FixedPolicy(maxAttempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, Backoff: model.BackoffFixed, InitialDelay: delay}
}

// PolicyFromStep converts a step retry config into a policy.
func PolicyFromStep(r model.StepRetry) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  r.MaxAttempts,
		Backoff:      r.Backoff,
		InitialDelay: time.Duration(r.InitialDelayMS) * time.Millisecond,
	}
}

// Delay returns the sleep after the given 1-based attempt, capped at one
// minute. Exponential backoff doubles per attempt: 1x, 2x, 4x, 8x.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.InitialDelay
	if p.Backoff == model.BackoffExponential {
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= maxRetryDelay {
				break
			}
		}
	}
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

// Retry invokes op until it succeeds or MaxAttempts is reached, sleeping
// between attempts per the policy. The operation runs at most MaxAttempts
// times; the last error is returned on exhaustion.
func Retry[T any](ctx context.Context, logger *slog.Logger, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var zero T
	var lastErr error
	for attempt := 1; ; attempt++ {
		logger.Debug("retry attempt", "attempt", attempt, "max_attempts", policy.MaxAttempts)

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt >= policy.MaxAttempts {
			logger.Warn("All retry attempts failed", "attempts", policy.MaxAttempts, "error", err)
			return zero, lastErr
		}

		delay := policy.Delay(attempt)
		logger.Warn("Attempt failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		if err := sleep(ctx, delay); err != nil {
			return zero, lastErr
		}
	}
}

// sleep waits for d or until the context is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
