package ratelimit

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmTokenBucket   = "token_bucket"
	AlgorithmRedis         = "redis"
	AlgorithmNone          = "none"
)

// Options selects and sizes a limiter
type Options struct {
	Algorithm string
	Requests  int
	Window    time.Duration
	Burst     int
	MaxWait   time.Duration

	// Redis and RedisKey are used by the redis algorithm only
	Redis    redis.Cmdable
	RedisKey string
}

// New builds the limiter named by opts.Algorithm
func New(opts Options) (Limiter, error) {
	if opts.Algorithm != AlgorithmNone && (opts.Requests <= 0 || opts.Window <= 0) {
		return nil, fmt.Errorf("rate limit needs positive requests and window, got %d per %s", opts.Requests, opts.Window)
	}

	switch opts.Algorithm {
	case "", AlgorithmSlidingWindow:
		return NewSlidingWindow(opts.Requests, opts.Window, opts.MaxWait), nil
	case AlgorithmTokenBucket:
		return NewTokenBucket(opts.Requests, opts.Burst, opts.Window, opts.MaxWait), nil
	case AlgorithmRedis:
		if opts.Redis == nil {
			return nil, fmt.Errorf("redis rate limiter needs a redis client")
		}
		return NewRedisWindow(opts.Redis, opts.RedisKey, opts.Requests, opts.Window, opts.MaxWait), nil
	case AlgorithmNone:
		return Unlimited{}, nil
	default:
		return nil, fmt.Errorf("unknown rate limit algorithm: %s", opts.Algorithm)
	}
}
