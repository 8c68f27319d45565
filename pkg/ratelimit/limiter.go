package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	errs "zester/pkg/errors"
)

const (
	// DefaultMaxWait bounds a single admission when no ceiling is configured
	DefaultMaxWait = 5 * time.Minute
	// DefaultWindow replaces a non-positive window
	DefaultWindow = time.Minute
)

// Limiter gates outgoing requests under a max-requests-per-window budget
type Limiter interface {
	// Allow admits a request only if the budget has room right now
	Allow() bool
	// Admit blocks until a request fits the budget. It fails with a
	// rate_limit_exceeded error when the wait would pass the ceiling and
	// with the context error when ctx ends first.
	Admit(ctx context.Context) error
	// Reset clears recorded requests
	Reset()
}

// SlidingWindow admits at most maxRequests within any windowSize span.
// Safe for concurrent use, so one instance can serve as a global budget.
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	maxWait     time.Duration
	requests    []time.Time
	mu          sync.Mutex
}

// NewSlidingWindow creates a sliding window limiter. maxRequests is at least
// 1, windowSize <= 0 selects DefaultWindow and maxWait <= 0 selects
// DefaultMaxWait.
func NewSlidingWindow(maxRequests int, windowSize, maxWait time.Duration) *SlidingWindow {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		maxWait:     maxWait,
		requests:    make([]time.Time, 0, maxRequests),
	}
}

// Allow checks if a request can proceed
func (sw *SlidingWindow) Allow() bool {
	_, ok := sw.reserve(time.Now())
	return ok
}

// Admit waits for a free slot in the window
func (sw *SlidingWindow) Admit(ctx context.Context) error {
	deadline := time.Now().Add(sw.maxWait)
	for {
		now := time.Now()
		wait, ok := sw.reserve(now)
		if ok {
			return nil
		}
		if now.Add(wait).After(deadline) {
			return exceeded(wait, sw.maxWait)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Reset clears all recorded requests
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.requests = sw.requests[:0]
}

// reserve records a request at now if there is room, otherwise returns how
// long until the oldest request leaves the window.
func (sw *SlidingWindow) reserve(now time.Time) (time.Duration, bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.cleanOldRequests(now)
	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return 0, true
	}

	wait := sw.requests[0].Add(sw.windowSize).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// cleanOldRequests removes requests outside the sliding window
func (sw *SlidingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}

	if i > 0 {
		copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:len(sw.requests)-i]
	}
}

// Unlimited admits everything. Used when rate limiting is disabled.
type Unlimited struct{}

func (Unlimited) Allow() bool                     { return true }
func (Unlimited) Admit(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                          {}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func exceeded(wait, ceiling time.Duration) error {
	return errs.NewRateLimitExceeded(
		fmt.Sprintf("admission needs %s, ceiling is %s", wait.Round(time.Millisecond), ceiling), nil)
}
