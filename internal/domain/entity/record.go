// Package entity defines the core domain entities and validation logic for the gallery feed.
// It contains the records shown in the feed, the pages they arrive in, and the
// upload request submitted to create a new record, along with their validation
// rules and domain-specific errors.
package entity

// Record represents a single image in the gallery feed.
// Records are immutable once created; identity is ID.
type Record struct {
	ID          string
	Title       string
	Description string
	URL         string
	Timestamp   int64
}

// Cursor is the continuation token of a paginated feed.
// A nil Cursor means "start from the beginning" when fetching and
// "no further pages" when returned by a page.
type Cursor *int64

// CursorAt returns a Cursor pointing at v.
func CursorAt(v int64) Cursor {
	return &v
}

// CursorKey returns a stable string form of c, used for logging and single-flight keys.
func CursorKey(c Cursor) string {
	if c == nil {
		return "start"
	}
	return formatInt(*c)
}

// FeedPage is one page of records plus the cursor of the following page.
// It is produced once per fetch and never mutated.
type FeedPage struct {
	Items      []Record
	NextCursor Cursor
}

// HasNext reports whether another page follows this one.
func (p FeedPage) HasNext() bool {
	return p.NextCursor != nil
}
