package soundcloud

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zester_requests_total",
		Help: "Total number of API requests by HTTP status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "zester_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.DefBuckets,
	})
)
