package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(delay time.Duration)
}

// DelayLimiter spaces out consecutive actions by a download delay. With
// jitter enabled each gap is drawn uniformly from [0.5*delay, 1.5*delay).
type DelayLimiter struct {
	mu         sync.Mutex
	delay      time.Duration
	jitter     bool
	lastAction time.Time
	random     func() float64
}

func NewDelayLimiter(delay time.Duration, jitter bool) *DelayLimiter {
	return &DelayLimiter{
		delay:  delay,
		jitter: jitter,
		random: rand.Float64,
	}
}

func (r *DelayLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastAction.IsZero() {
		elapsed := time.Since(r.lastAction)
		delay := r.calculateDelay()

		if elapsed < delay {
			timer := time.NewTimer(delay - elapsed)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	r.lastAction = time.Now()
	return nil
}

func (r *DelayLimiter) SetDelay(delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.delay = delay
}

func (r *DelayLimiter) calculateDelay() time.Duration {
	if !r.jitter || r.delay <= 0 {
		return r.delay
	}

	factor := 0.5 + r.random()
	return time.Duration(float64(r.delay) * factor)
}
