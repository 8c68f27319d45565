package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey prefixes the shared window counters
const DefaultRedisKey = "zester:ratelimit"

// RedisWindow is a fixed-window counter kept in Redis so that every process
// archiving with the same API credentials draws on one budget.
type RedisWindow struct {
	client      redis.Cmdable
	key         string
	maxRequests int
	window      time.Duration
	maxWait     time.Duration
	now         func() time.Time
}

// NewRedisWindow creates a Redis backed limiter. An empty key selects
// DefaultRedisKey, maxRequests is at least 1, window <= 0 selects
// DefaultWindow and maxWait <= 0 selects DefaultMaxWait.
func NewRedisWindow(client redis.Cmdable, key string, maxRequests int, window, maxWait time.Duration) *RedisWindow {
	if key == "" {
		key = DefaultRedisKey
	}
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &RedisWindow{
		client:      client,
		key:         key,
		maxRequests: maxRequests,
		window:      window,
		maxWait:     maxWait,
		now:         time.Now,
	}
}

// Allow admits a request if the current window has room. Redis failures
// deny the request.
func (rw *RedisWindow) Allow() bool {
	_, ok, err := rw.reserve(context.Background())
	return err == nil && ok
}

// Admit waits for the next window when the current one is full
func (rw *RedisWindow) Admit(ctx context.Context) error {
	deadline := rw.now().Add(rw.maxWait)
	for {
		wait, ok, err := rw.reserve(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if rw.now().Add(wait).After(deadline) {
			return exceeded(wait, rw.maxWait)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Reset drops the counter of the current window
func (rw *RedisWindow) Reset() {
	key, _ := rw.slot(rw.now())
	rw.client.Del(context.Background(), key)
}

func (rw *RedisWindow) slot(now time.Time) (string, time.Time) {
	n := now.UnixNano() / int64(rw.window)
	end := time.Unix(0, (n+1)*int64(rw.window))
	return fmt.Sprintf("%s:%d", rw.key, n), end
}

// reserve counts a request against the current window
func (rw *RedisWindow) reserve(ctx context.Context) (time.Duration, bool, error) {
	now := rw.now()
	key, end := rw.slot(now)

	pipe := rw.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.PExpire(ctx, key, 2*rw.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, false, fmt.Errorf("rate limit store: %w", err)
	}

	if incr.Val() <= int64(rw.maxRequests) {
		return 0, true, nil
	}
	return end.Sub(now), false, nil
}
