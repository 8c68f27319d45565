package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zester_pages_fetched_total",
		Help: "Total number of pages decoded by collection kind",
	}, []string{"kind"})

	recordsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zester_records_emitted_total",
		Help: "Total number of records produced by collection kind",
	}, []string{"kind"})

	duplicatesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zester_duplicates_dropped_total",
		Help: "Total number of repeated record ids dropped by collection kind",
	}, []string{"kind"})

	admissionWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "zester_admission_wait_seconds",
		Help:    "Time spent waiting on the rate limiter before a request",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 15, 60},
	})

	crawlsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zester_crawls_total",
		Help: "Total number of finished crawls by collection kind and result",
	}, []string{"kind", "result"})

	playlistsExpanded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zester_playlists_expanded_total",
		Help: "Total number of playlists fetched in full after the playlists crawl",
	})
)
