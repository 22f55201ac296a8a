package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// RetryPolicy retries transient payment failures with bounded exponential backoff.
type RetryPolicy struct {
	MaxRetries     uint64
	Base           time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	Log            *zap.Logger
}

// DefaultRetryPolicy returns 3 retries starting at 200ms with a 10s per-attempt timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		Base:           200 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.Base
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// Do runs fn until it succeeds, fails permanently or the retry budget is spent.
// Permanent errors are returned as-is. Exhaustion returns an error wrapping both
// ErrExhausted and the last failure.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	attempts := 0
	var last error
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempts++
		attemptCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		last = err
		category := CategoryOf(err)
		if !category.Retryable() {
			return err
		}
		log.Warn("Transient payment failure",
			zap.String("op", op),
			zap.Int("attempt", attempts),
			zap.String("category", string(category)),
			zap.Error(err),
		)
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if last != nil && CategoryOf(last).Retryable() {
		return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrExhausted, attempts, last)
	}
	return err
}
