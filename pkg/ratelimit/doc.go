// Package ratelimit gates requests to the SoundCloud API under a fixed
// max-requests-per-window budget.
//
// Implementations:
//
// Sliding Window:
//   - Tracks request times within a moving window
//   - Mutex guarded; one instance can be shared by concurrent crawls
//   - Default implementation
//
// Token Bucket:
//   - Built on golang.org/x/time/rate
//   - Spreads requests evenly with an optional burst
//
// Redis Window:
//   - Fixed window counter in Redis (INCR + PEXPIRE)
//   - One budget shared by every process using the same key
//
// All limiters implement Limiter. Admit never waits past the configured
// ceiling; when the budget cannot be met in time it returns a
// rate_limit_exceeded error.
//
// Usage:
//
//	limiter := ratelimit.NewSlidingWindow(60, time.Minute, 2*time.Minute)
//	if err := limiter.Admit(ctx); err != nil {
//	    return err
//	}
//	// issue the request
package ratelimit
