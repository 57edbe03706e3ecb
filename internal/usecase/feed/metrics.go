package feed

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for feed cache monitoring
var (
	// fetchTotal tracks fetch attempts per cache by result
	fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_cache_fetch_total",
			Help: "Total number of feed page fetches",
		},
		[]string{"cache", "result"}, // result: success|error|discarded|rejected|exhausted
	)

	// fetchDuration tracks the duration of external page fetches
	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_cache_fetch_duration_seconds",
			Help:    "Feed page fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"cache"},
	)

	// invalidationsTotal tracks cache invalidations
	invalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_cache_invalidations_total",
			Help: "Total number of feed cache invalidations",
		},
		[]string{"cache"},
	)

	// cachedItems tracks the number of records currently held
	cachedItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feed_cache_items",
			Help: "Number of records currently held by the feed cache",
		},
		[]string{"cache"},
	)
)

// Fetch results
const (
	resultSuccess   = "success"
	resultError     = "error"
	resultDiscarded = "discarded"
	resultRejected  = "rejected"
	resultExhausted = "exhausted"
)

func recordFetch(cache, result string) {
	fetchTotal.WithLabelValues(cache, result).Inc()
}

func recordFetchDuration(cache string, d time.Duration) {
	fetchDuration.WithLabelValues(cache).Observe(d.Seconds())
}

func recordInvalidation(cache string) {
	invalidationsTotal.WithLabelValues(cache).Inc()
}

func setCachedItems(cache string, n int) {
	cachedItems.WithLabelValues(cache).Set(float64(n))
}
