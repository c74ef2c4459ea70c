// Package retrier implements exponential backoff with jitter for transient
// I/O failures.
package retrier

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 10 * time.Second
	defaultMaxAttempts = 3
	jitterFactor       = 0.2
)

// Retrier retries an operation with exponentially growing delays.
type Retrier struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
}

// New creates a retrier with default settings.
func New() *Retrier {
	return &Retrier{
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		maxAttempts: defaultMaxAttempts,
	}
}

// WithAttempts overrides how many attempts are made in total.
func (r *Retrier) WithAttempts(n int) *Retrier {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

// Do runs fn until it succeeds, attempts run out, or the context is done.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := r.baseDelay

	var err error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			jitter := time.Duration((rand.Float64()*2 - 1) * jitterFactor * float64(delay))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay + jitter):
			}

			delay *= 2
			if delay > r.maxDelay {
				delay = r.maxDelay
			}
		}

		if err = fn(ctx); err == nil {
			return nil
		}
	}

	return err
}

// DoWithData runs fn with retries and returns its value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}
