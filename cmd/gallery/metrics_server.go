package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"gallery-feed/internal/resilience/circuitbreaker"
	"gallery-feed/internal/usecase/feed"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string          `json:"status"`
	Feed     FeedHealth      `json:"feed"`
	Circuits []CircuitStatus `json:"circuits"`
}

// FeedHealth summarizes the feed cache.
type FeedHealth struct {
	Status  string `json:"status"`
	Records int    `json:"records"`
	HasMore bool   `json:"has_more"`
	Error   string `json:"error,omitempty"`
}

// CircuitStatus is the state of one circuit breaker.
type CircuitStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// runMetricsServer serves /metrics and /health on addr until ctx is canceled,
// then shuts down gracefully within 5 seconds.
//
// The server exposes the following endpoints:
//   - GET /metrics - Prometheus metrics endpoint
//   - GET /health - feed cache status and circuit breaker states; 503 while a circuit is open
func runMetricsServer(ctx context.Context, logger *slog.Logger, addr string, cache *feed.Cache, breakers ...*circuitbreaker.CircuitBreaker) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler(cache, breakers))

	server := &http.Server{
		Addr:         addr,
		Handler:      recoverPanics(logger, logRequests(logger, mux)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("metrics server shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", slog.Any("error", err))
		} else {
			logger.Info("metrics server stopped")
		}
	}()

	logger.Info("metrics server starting", slog.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// healthHandler reports 200 OK while every circuit is closed or half-open,
// 503 Service Unavailable otherwise.
func healthHandler(cache *feed.Cache, breakers []*circuitbreaker.CircuitBreaker) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := cache.Snapshot()
		resp := HealthResponse{
			Status: "healthy",
			Feed: FeedHealth{
				Status:  snap.Status.String(),
				Records: len(snap.Flatten()),
				HasMore: snap.HasMore(),
			},
			Circuits: make([]CircuitStatus, 0, len(breakers)),
		}
		if snap.Err != nil {
			resp.Feed.Error = snap.Err.Error()
		}

		statusCode := http.StatusOK
		for _, cb := range breakers {
			resp.Circuits = append(resp.Circuits, CircuitStatus{Name: cb.Name(), State: cb.State().String()})
			if cb.IsOpen() {
				resp.Status = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
