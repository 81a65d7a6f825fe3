// Package retrier runs a request under the exponential backoff policy shared by
// the read and write paths.
package retrier

import (
	"context"
	"time"

	"github.com/IsaacDSC/gquery/internal/apierr"
	"github.com/IsaacDSC/gquery/pkg/ctxlogger"
	"github.com/juju/clock"
	"github.com/juju/retry"
)

const DefaultDelay = time.Second

// Observer is notified of every failed attempt that will be retried.
type Observer interface {
	Retry(attempt int, err error)
}

type Policy struct {
	// Retries is the number of retries after the first attempt.
	Retries int
	// Delay is the wait before the first retry; each following wait doubles.
	Delay    time.Duration
	Clock    clock.Clock
	Observer Observer
}

// Do calls fn up to Retries+1 times. Waits between attempts are
// 2^(attempt-1) x Delay. Aborts and authentication failures end the loop at once.
// When ctx is cancelled during a wait, ctx.Err() is returned.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	if p.Retries < 0 {
		p.Retries = 0
	}
	if p.Delay <= 0 {
		p.Delay = DefaultDelay
	}
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}

	var (
		out     T
		lastErr error
	)
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			v, err := fn(ctx)
			if err != nil {
				lastErr = err
				return err
			}
			out = v
			return nil
		},
		IsFatalError: func(err error) bool {
			return !apierr.IsRetryable(err)
		},
		NotifyFunc: func(err error, attempt int) {
			if attempt > p.Retries {
				return
			}
			ctxlogger.GetLogger(ctx).Debug("request failed, retrying", "attempt", attempt, "error", err)
			if p.Observer != nil {
				p.Observer.Retry(attempt, err)
			}
		},
		Attempts:    p.Retries + 1,
		Delay:       p.Delay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       p.Clock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		return out, nil
	}

	var zero T
	if retry.IsRetryStopped(err) && ctx.Err() != nil {
		return zero, ctx.Err()
	}
	if retry.IsAttemptsExceeded(err) {
		ctxlogger.GetLogger(ctx).Debug("retries exhausted", "attempts", p.Retries+1, "error", lastErr)
	}
	if lastErr == nil {
		return zero, err
	}
	return zero, lastErr
}
