package docql

import (
	"context"
	"time"

	"github.com/stratumdb/docql/errors"
)

// RetryPolicy retries an operation on retriable failure with a capped attempt
// count. Only failures classified retriable by errors.IsRetriable are
// reattempted; terminal failures surface immediately. The error returned on
// exhaustion is the last failure tagged with the attempt count reached.
type RetryPolicy struct {
	// MaxAttempts bounds the attempt count. Zero means DefaultMaxAttempts.
	MaxAttempts int
	// Sleep is invoked between attempts. Nil uses a context-aware sleep
	// honoring the store's retry-after hint when the failure carries one.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do runs op until it succeeds, fails terminally, or attempts are exhausted
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	max := p.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !errors.IsRetriable(err) || attempt == max {
			return errors.WithAttempt(err, attempt)
		}
		if serr := sleep(ctx, retryDelay(err, attempt)); serr != nil {
			return errors.WithAttempt(err, attempt)
		}
	}
	return errors.WithAttempt(err, max)
}

// retryDelay honors the store's retry-after hint when present, otherwise a
// small delay growing with the attempt count
func retryDelay(err error, attempt int) time.Duration {
	if after := errors.Extract(err).RetryAfter; after > 0 {
		return after
	}
	return time.Duration(attempt) * 100 * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
