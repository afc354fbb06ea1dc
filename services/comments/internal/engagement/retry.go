package engagement

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds retries of idempotent store calls that fail with
// ErrUnavailable. Delays double from Base up to Max.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 4, Base: 50 * time.Millisecond, Max: 2 * time.Second}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := max(p.Base, time.Millisecond)
	for i := 1; i < attempt && d < p.Max; i++ {
		d *= 2
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

func (p RetryPolicy) do(ctx context.Context, fn func(context.Context) error) error {
	attempts := max(p.Attempts, 1)
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil || !errors.Is(err, ErrUnavailable) || attempt >= attempts {
			return err
		}
		if !sleep(ctx, p.delay(attempt)) {
			return err
		}
	}
}

// sleep waits for d or ctx, reporting false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
