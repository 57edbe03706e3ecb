// Package feed provides the paginated feed cache of the gallery client.
// It fetches pages keyed by a cursor, merges them in issue order and exposes
// loading, error and has-more state to the presentation layer.
package feed

import (
	"errors"
	"fmt"

	"gallery-feed/internal/domain/entity"
)

// Sentinel errors for feed cache operations.
var (
	// ErrFetchInFlight indicates that a fetch for a different cursor is still pending.
	// Pages must be appended in the order they were issued, so the call is rejected
	// instead of racing the pending one.
	ErrFetchInFlight = errors.New("feed fetch already in flight")

	// ErrStaleCursor indicates that the cursor passed to FetchAfter is not the
	// cache's current cursor, so its page could not extend the loaded chain.
	ErrStaleCursor = errors.New("feed cursor is stale")

	// ErrDiscarded indicates that a fetch completed after the cache was invalidated
	// or closed. Its page was not applied.
	ErrDiscarded = errors.New("feed page discarded")

	// ErrClosed indicates that the cache has been torn down.
	ErrClosed = errors.New("feed cache closed")
)

// TransportError wraps a failure of the injected page fetcher.
// The cache moves to the error status but keeps every page loaded so far.
type TransportError struct {
	Cursor entity.Cursor
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch page after %s: %v", entity.CursorKey(e.Cursor), e.Err)
}

// Unwrap returns the underlying fetcher error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
