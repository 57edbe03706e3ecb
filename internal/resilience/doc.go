// Package resilience provides fault tolerance for the calls the gallery client
// makes to its remote collaborators.
//
// The package supports:
//   - Circuit breakers for the gallery API and the asset store
//   - Retry logic with exponential backoff and jitter for idempotent calls
//   - Outgoing rate limiting
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.GalleryAPIConfig())
//	err := retry.WithBackoff(ctx, retry.FeedPageConfig(), func() error {
//	    return cb.Do(func() error { return fetchPage(ctx) })
//	})
package resilience
