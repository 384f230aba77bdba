package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// RetryPolicy retries temporary failures with exponential backoff and jitter
type RetryPolicy struct {
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	budget       time.Duration
	multiplier   float64

	mu  sync.Mutex
	rng *rand.Rand
	// sleep is swapped out by tests
	sleep func(context.Context, time.Duration) error
}

// NewRetryPolicy allows maxRetries retries after the first attempt, all within budget
func NewRetryPolicy(maxRetries int, initialDelay, budget time.Duration) *RetryPolicy {
	return &RetryPolicy{
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		maxDelay:     10 * time.Second,
		budget:       budget,
		multiplier:   2,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:        sleepCtx,
	}
}

// Retryable is implemented by errors that know whether a retry can help
type Retryable interface {
	Temporary() bool
}

// IsRetryable reports whether err, or anything it wraps, asks to be retried
func IsRetryable(err error) bool {
	var r Retryable
	return errors.As(err, &r) && r.Temporary()
}

// Execute runs fn until it succeeds, returns a non retryable error, the retries
// are used up or the next wait would exceed the budget
func (r *RetryPolicy) Execute(ctx context.Context, fn func(context.Context) error) error {
	start := time.Now()
	delay := r.initialDelay
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == r.maxRetries {
			break
		}

		wait := r.jitter(delay)
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > wait {
			wait = se.RetryAfter
		}
		if time.Since(start)+wait > r.budget {
			break
		}
		if err := r.sleep(ctx, wait); err != nil {
			return fmt.Errorf("retry interrupted: %w", err)
		}

		delay = time.Duration(float64(delay) * r.multiplier)
		if delay > r.maxDelay {
			delay = r.maxDelay
		}
	}
	return lastErr
}

// jitter returns a duration in [d/2, d)
func (r *RetryPolicy) jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	half := d / 2
	return half + time.Duration(r.rng.Int63n(int64(half)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
