// Package metrics exposes the Prometheus metrics of an archive run.
// Metrics are defined next to the code that records them (soundcloud,
// retry, crawler) and registered through promauto on the default registry.
//
// Request Metrics (pkg/soundcloud):
//   - zester_requests_total{status} (Counter): API requests by HTTP status, "error" for transport failures
//   - zester_request_duration_seconds (Histogram): API request latency
//
// Retry Metrics (pkg/retry):
//   - zester_retries_total{error_type} (Counter): Retry attempts by error type
//   - zester_retry_backoff_seconds{error_type} (Histogram): Backoff waited before a retry
//   - zester_retry_exhausted_total{error_type} (Counter): Requests that used up the retry budget
//
// Crawl Metrics (pkg/crawler):
//   - zester_pages_fetched_total{kind} (Counter): Pages decoded by collection kind
//   - zester_records_emitted_total{kind} (Counter): Records produced by collection kind
//   - zester_duplicates_dropped_total{kind} (Counter): Repeated ids dropped within a crawl
//   - zester_admission_wait_seconds (Histogram): Time spent waiting on the rate limiter
//   - zester_crawls_total{kind, result} (Counter): Finished crawls by outcome
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zester/pkg/logger"
)

// Handler serves the default gatherer in the Prometheus text format
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoWithFields("metrics endpoint listening", map[string]interface{}{
			"addr": addr,
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
