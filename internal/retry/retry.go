// Package retry re-invokes failable operations with a fixed delay between attempts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Func is an operation that can be retried.
type Func[A, R any] func(ctx context.Context, arg A) (R, error)

// Policy describes how many times a failed operation is retried and how long
// to wait between attempts.
type Policy struct {
	MaxRetries uint64
	Delay      time.Duration

	// OnRetry, if set, is called after each failed attempt that will be retried.
	OnRetry func(err error, wait time.Duration)
}

// Wrap returns a function with the same signature as op that retries op on
// failure. The first call is not counted against MaxRetries, so op runs at most
// MaxRetries+1 times. When the budget is spent the last error is returned
// unchanged. Each invocation of the returned function has its own budget.
func Wrap[A, R any](op Func[A, R], p Policy) Func[A, R] {
	return func(ctx context.Context, arg A) (R, error) {
		var result R
		b := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), p.MaxRetries),
			ctx,
		)

		var lastErr error
		err := backoff.RetryNotify(func() error {
			r, err := op(ctx, arg)
			if err != nil {
				lastErr = err
				return err
			}
			result = r
			return nil
		}, b, func(err error, wait time.Duration) {
			if p.OnRetry != nil {
				p.OnRetry(err, wait)
			}
		})
		if err != nil {
			// backoff returns ctx.Err() when the context ends between attempts;
			// the caller wants the operation's own failure when there was one.
			if lastErr != nil {
				return result, lastErr
			}
			return result, err
		}
		return result, nil
	}
}
