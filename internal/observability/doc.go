// Package observability provides the logging, metrics and tracing used by the
// gallery client.
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - metrics: Prometheus metrics for the gallery API adapters
//   - tracing: OpenTelemetry spans and header propagation for outgoing calls
//   - requestid: Request IDs for outgoing calls
//
// Example usage:
//
//	logger := logging.NewFromEnv()
//	logger.Info("gallery client started")
//	metrics.RecordAPIRequest("fetch_page", 200, time.Since(start))
package observability
