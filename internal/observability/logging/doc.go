// Package logging provides structured logging utilities with context propagation.
//
// This package wraps the standard library's log/slog package with helper functions
// for the logging patterns used by the gallery client.
//
// Key features:
//   - JSON and text output formats
//   - Request ID propagation for outgoing API calls
//   - Context-aware logging
//   - Configurable log levels
//
// Example usage:
//
//	logger := logging.New(logging.Options{Format: "text", Level: "debug"})
//	ctx = logging.WithLogger(ctx, logger)
//	logging.FromContext(ctx).Info("feed page loaded", slog.Int("items", 20))
package logging
