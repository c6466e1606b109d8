package translate

import (
	"context"
	"sync"
	"time"
)

// Throttle bounds the number of in-flight calls and spaces call starts by a
// minimum interval. One Throttle is shared by every job that talks to the
// same backend.
type Throttle struct {
	sem      chan struct{}
	interval time.Duration

	mu   sync.Mutex
	last time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewThrottle creates a throttle allowing limit concurrent calls with at
// least interval between two call starts.
func NewThrottle(limit int, interval time.Duration) *Throttle {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	if interval < 0 {
		interval = 0
	}
	return &Throttle{
		sem:      make(chan struct{}, limit),
		interval: interval,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Limit returns the concurrency bound.
func (t *Throttle) Limit() int {
	return cap(t.sem)
}

// Acquire blocks until a slot is free and the pacing interval since the
// previous call start has elapsed. Every successful Acquire must be paired
// with Release.
func (t *Throttle) Acquire(ctx context.Context) error {
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	// The pacing lock is held across the wait so call starts are serialised.
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.last.IsZero() {
		if wait := t.interval - t.now().Sub(t.last); wait > 0 {
			if err := t.sleep(ctx, wait); err != nil {
				<-t.sem
				return err
			}
		}
	}
	t.last = t.now()
	return nil
}

// Release frees the slot taken by Acquire.
func (t *Throttle) Release() {
	<-t.sem
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
