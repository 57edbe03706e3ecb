package upload

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for upload pipeline monitoring
var (
	// submissionsTotal tracks submissions by outcome kind
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_submissions_total",
			Help: "Total number of upload submissions by outcome",
		},
		[]string{"outcome"},
	)

	// submissionDuration tracks end-to-end submission duration
	submissionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "upload_submission_duration_seconds",
			Help:    "Upload submission duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// assetUploadsTotal tracks file selections that went to the asset store
	assetUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_asset_uploads_total",
			Help: "Total number of asset uploads by result",
		},
		[]string{"result"}, // success|invalid|error|dropped
	)
)

func recordSubmission(kind Kind, d time.Duration) {
	submissionsTotal.WithLabelValues(kind.String()).Inc()
	submissionDuration.Observe(d.Seconds())
}

func recordAssetUpload(result string) {
	assetUploadsTotal.WithLabelValues(result).Inc()
}
