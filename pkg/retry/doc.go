// Package retry classifies request failures and retries the transient ones.
//
// Classification:
//   - network failures, 5xx and 429: Retryable
//   - 401/403, other 4xx, decode errors, cancellation: Fatal
//   - nil: Success
//
// Retryable failures pause for the server's Retry-After hint when present,
// otherwise for an exponential backoff with jitter. After MaxAttempts the
// last failure is returned wrapped in a rate_limit_exceeded error.
//
// Usage:
//
//	policy := &retry.Policy{
//	    MaxAttempts: 5,
//	    Backoff:     retry.DefaultExponentialBackoff(),
//	}
//	page, err := retry.Do(ctx, policy, func(ctx context.Context) (*Page, error) {
//	    return client.FetchPage(ctx, req)
//	})
package retry
