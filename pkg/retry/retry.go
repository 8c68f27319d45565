package retry

import (
	"context"
	"fmt"
	"time"

	errs "zester/pkg/errors"
	"zester/pkg/logger"
)

// Outcome is the verdict on one request attempt
type Outcome int

const (
	Success Outcome = iota
	Retryable
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Classify maps an attempt's error to an outcome. Network failures, 5xx and
// 429 are retryable; everything else, including unclassified errors and
// context cancellation, is fatal.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errs.IsRetryable(err):
		return Retryable
	default:
		return Fatal
	}
}

// Policy decides whether and when a failed request is attempted again
type Policy struct {
	// MaxAttempts caps attempts per request, the first one included
	MaxAttempts int
	// Backoff is used when the server gives no Retry-After hint
	Backoff BackoffStrategy
	// MaxRetryAfter caps server supplied Retry-After hints (0 means no cap)
	MaxRetryAfter time.Duration
	// OnRetry is called before each pause
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep performs the pause; defaults to Wait
	Sleep func(ctx context.Context, d time.Duration) error
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultPolicy returns a policy with sensible defaults
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:   5,
		Backoff:       DefaultExponentialBackoff(),
		MaxRetryAfter: 5 * time.Minute,
		Logger:        logger.GetLogger(),
	}
}

// Delay returns the pause before retry number attempt. A Retry-After hint on
// the error wins over the backoff strategy.
func (p *Policy) Delay(attempt int, err error) time.Duration {
	if e, ok := errs.As(err); ok && e.RetryAfter > 0 {
		if p.MaxRetryAfter > 0 && e.RetryAfter > p.MaxRetryAfter {
			return p.MaxRetryAfter
		}
		return e.RetryAfter
	}
	if p.Backoff == nil {
		return DefaultExponentialBackoff().NextDelay(attempt)
	}
	return p.Backoff.NextDelay(attempt)
}

// Do runs op until it succeeds, fails fatally or uses up the attempt budget.
// An exhausted budget is reported as a rate_limit_exceeded error wrapping the
// last failure.
func Do[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	if p == nil {
		p = DefaultPolicy()
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Wait
	}
	log := p.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		switch Classify(err) {
		case Success:
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return result, nil
		case Fatal:
			return zero, err
		}

		errType := errorType(err)
		if attempt >= maxAttempts {
			retryExhaustedTotal.WithLabelValues(errType).Inc()
			log.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt,
				"last_error": err.Error(),
			})
			return zero, errs.NewRateLimitExceeded(
				fmt.Sprintf("gave up after %d attempts", attempt), err)
		}

		delay := p.Delay(attempt, err)
		retriesTotal.WithLabelValues(errType).Inc()
		retryBackoffSeconds.WithLabelValues(errType).Observe(delay.Seconds())

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": maxAttempts,
		})

		if err := sleep(ctx, delay); err != nil {
			log.WarnWithFields("retry cancelled", map[string]interface{}{
				"attempt": attempt,
				"reason":  err.Error(),
			})
			return zero, fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

func errorType(err error) string {
	if e, ok := errs.As(err); ok {
		return string(e.Type)
	}
	return "unknown"
}
