package translate

import (
	"context"
	"time"

	"pdf-translator/internal/logger"
)

// Defaults for the throttle and the retry policy.
const (
	DefaultConcurrency  = 5
	DefaultPacing       = 100 * time.Millisecond
	DefaultMaxAttempts  = 4
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultMaxDelay     = 5 * time.Second
	DefaultCallTimeout  = 10 * time.Second
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// RetryPolicy is an exponential backoff schedule.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Sleep        Sleeper
}

// DefaultRetryPolicy returns four attempts starting at 500ms, doubling, capped
// at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

// Delay returns the wait before attempt+1, where attempt counts from 1.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Retry calls fn until it succeeds, fails permanently or the attempts run
// out. The last error is returned.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if Classify(err) == Permanent {
			logger.Warn("permanent translation error, not retrying",
				logger.Int("attempt", attempt),
				logger.Err(err))
			return zero, err
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		logger.Debug("retrying after delay",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err))
		if serr := sleep(ctx, delay); serr != nil {
			return zero, serr
		}
	}
	return zero, lastErr
}
