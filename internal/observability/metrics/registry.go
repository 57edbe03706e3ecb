package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// API client metrics track calls made to the remote gallery endpoints
var (
	// APIRequestsTotal counts outgoing requests by operation and status
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_api_requests_total",
			Help: "Total number of requests sent to the gallery API",
		},
		[]string{"operation", "status"},
	)

	// APIRequestDuration measures outgoing request duration in seconds
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_api_request_duration_seconds",
			Help:    "Gallery API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// AssetUploadSize measures uploaded file size in bytes
	AssetUploadSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "gallery_asset_upload_size_bytes",
			Help: "Size of files uploaded to the asset store in bytes",
			Buckets: []float64{
				10240, 102400, 512000, 1048576, 2097152, 5242880, 10000000,
			},
		},
	)

	// CircuitBreakerState tracks circuit breaker state.
	// 0 = closed, 1 = open, 2 = half-open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)
)

// RecordAPIRequest records one outgoing request. statusCode 0 means the
// request never produced a response (transport failure or open circuit).
func RecordAPIRequest(operation string, statusCode int, duration time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	APIRequestsTotal.WithLabelValues(operation, status).Inc()
	APIRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAssetUploadSize records the size of an uploaded file.
func RecordAssetUploadSize(size int64) {
	if size > 0 {
		AssetUploadSize.Observe(float64(size))
	}
}

// SetCircuitBreakerState updates the circuit breaker gauge.
func SetCircuitBreakerState(name string, state gobreaker.State) {
	var value float64
	switch state {
	case gobreaker.StateClosed:
		value = 0
	case gobreaker.StateOpen:
		value = 1
	case gobreaker.StateHalfOpen:
		value = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(value)
}
