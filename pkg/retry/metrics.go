package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zester_retries_total",
		Help: "Total number of retry attempts by error type",
	}, []string{"error_type"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zester_retry_backoff_seconds",
		Help:    "Backoff waited before a retry by error type",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300},
	}, []string{"error_type"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zester_retry_exhausted_total",
		Help: "Total number of requests that used up the retry budget by error type",
	}, []string{"error_type"})
)
