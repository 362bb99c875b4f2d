package util

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds how often and how fast an operation is retried.
// Backoff doubles after every failed attempt and is capped at MaxBackoff.
type RetryPolicy struct {
	MaxTries   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func (p RetryPolicy) tries() int {
	if p.MaxTries <= 0 {
		return 1
	}
	return p.MaxTries
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.Backoff <= 0 {
		return 0
	}
	d := p.Backoff << attempt
	if d <= 0 || (p.MaxBackoff > 0 && d > p.MaxBackoff) {
		d = p.MaxBackoff
	}
	return d
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

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// RetryWithContext calls fn until it succeeds, the policy is exhausted or ctx is done.
// Context errors returned by fn are not retried.
// Returns ctx.Err() if the context is canceled, otherwise returns the last error.
func RetryWithContext[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var (
		lastErr error
		zero    T
	)
	tries := policy.tries()
	for i := 0; i < tries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if isContextErr(err) {
			return zero, err
		}
		lastErr = err
		if i < tries-1 {
			if err := sleepContext(ctx, policy.delay(i)); err != nil {
				return zero, err
			}
		}
	}
	return zero, lastErr
}
