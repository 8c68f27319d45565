package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket spreads maxRequests evenly over the window and allows bursts
// up to burst requests.
type TokenBucket struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	every   time.Duration
	burst   int
	maxWait time.Duration
}

// NewTokenBucket creates a token bucket refilling maxRequests tokens per
// window. Non-positive sizes are raised to 1 request per DefaultWindow and
// maxWait <= 0 selects DefaultMaxWait.
func NewTokenBucket(maxRequests, burst int, window, maxWait time.Duration) *TokenBucket {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if burst <= 0 {
		burst = 1
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	every := window / time.Duration(maxRequests)
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Every(every), burst),
		every:   every,
		burst:   burst,
		maxWait: maxWait,
	}
}

// Allow checks if a token is available right now
func (tb *TokenBucket) Allow() bool {
	return tb.current().Allow()
}

// Admit waits for a token. A reservation that would exceed the ceiling is
// cancelled so it does not consume budget.
func (tb *TokenBucket) Admit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r := tb.current().Reserve()
	if !r.OK() {
		return exceeded(tb.maxWait+time.Nanosecond, tb.maxWait)
	}
	delay := r.Delay()
	if delay > tb.maxWait {
		r.Cancel()
		return exceeded(delay, tb.maxWait)
	}
	if delay == 0 {
		return nil
	}
	if err := sleep(ctx, delay); err != nil {
		r.Cancel()
		return err
	}
	return nil
}

// Reset refills the bucket
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.limiter = rate.NewLimiter(rate.Every(tb.every), tb.burst)
}

func (tb *TokenBucket) current() *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	return tb.limiter
}
