// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes the metrics of the gallery API adapters:
//   - outgoing request count and duration per operation
//   - asset upload sizes
//   - circuit breaker state
//
// Feed cache and upload pipeline metrics live next to their use cases.
// All metrics are registered with the Prometheus default registry and
// exposed via the /metrics endpoint of the CLI when enabled.
//
// Example usage:
//
//	start := time.Now()
//	resp, err := client.Do(req)
//	metrics.RecordAPIRequest("fetch_page", resp.StatusCode, time.Since(start))
package metrics
