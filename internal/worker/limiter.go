package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrAcquireTimeout is returned when no token is available within the
// acquisition timeout.
var ErrAcquireTimeout = errors.New("rate limiter: timed out waiting for a token")

// Limiter is a token bucket shared by all workers. Capacity and refill both
// equal the requests-per-minute budget.
type Limiter struct {
	limiter           *rate.Limiter
	requestsPerMinute int
}

// NewLimiter creates a limiter allowing requestsPerMinute calls per minute.
// A non-positive value disables limiting.
func NewLimiter(requestsPerMinute int) *Limiter {
	if requestsPerMinute <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Limiter{
		limiter:           rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), requestsPerMinute),
		requestsPerMinute: requestsPerMinute,
	}
}

// RequestsPerMinute returns the configured budget, or 0 when unlimited.
func (l *Limiter) RequestsPerMinute() int { return l.requestsPerMinute }

// Acquire blocks until a token is available. With a positive timeout it
// gives up after that long and returns ErrAcquireTimeout; it also returns
// early when the wait could not finish before the deadline. Cancellation of
// ctx is reported as ctx's error.
func (l *Limiter) Acquire(ctx context.Context, timeout time.Duration) error {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := l.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w (%s): %v", ErrAcquireTimeout, timeout, err)
	}
	return nil
}

// Allow takes a token if one is available without waiting.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
