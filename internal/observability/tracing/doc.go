// Package tracing provides OpenTelemetry tracing for outgoing gallery calls.
//
// Spans are created with the global tracer provider, so they are no-ops until
// the application installs a provider. Trace context is propagated to the
// remote API through W3C Trace Context headers.
//
// Example usage:
//
//	ctx, span := tracing.StartClientSpan(ctx, "gallery.fetch_page")
//	tracing.InjectHeaders(ctx, req)
//	resp, err := client.Do(req)
//	tracing.EndSpan(span, err)
package tracing
