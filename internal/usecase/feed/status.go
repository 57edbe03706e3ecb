package feed

import "gallery-feed/internal/domain/entity"

// Status is the lifecycle state of a Cache.
type Status int

const (
	// StatusIdle means no page is loaded and nothing is in flight.
	StatusIdle Status = iota
	// StatusLoading means the first page is being fetched.
	StatusLoading
	// StatusLoadingMore means a following page is being fetched.
	StatusLoadingMore
	// StatusError means the last fetch failed. Loaded pages are kept.
	StatusError
	// StatusReady means at least one page is loaded and nothing is in flight.
	StatusReady
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusLoadingMore:
		return "loadingMore"
	case StatusError:
		return "error"
	case StatusReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Fetching reports whether a fetch is in progress.
func (s Status) Fetching() bool {
	return s == StatusLoading || s == StatusLoadingMore
}

// Event is emitted on every state transition of a Cache.
// Subscribers re-read the cache (Flatten, Status) in response.
type Event struct {
	From  Status
	To    Status
	Pages int
	Err   error
}

// Listener receives cache events.
type Listener func(Event)

// Snapshot is a consistent copy of the cache state.
type Snapshot struct {
	Pages  []entity.FeedPage
	Status Status
	Err    error
}

// Flatten returns the concatenation of all pages' items in page order.
func (s Snapshot) Flatten() []entity.Record {
	n := 0
	for _, p := range s.Pages {
		n += len(p.Items)
	}
	out := make([]entity.Record, 0, n)
	for _, p := range s.Pages {
		out = append(out, p.Items...)
	}
	return out
}

// HasMore reports whether the most recently appended page has a next cursor.
func (s Snapshot) HasMore() bool {
	if len(s.Pages) == 0 {
		return false
	}
	return s.Pages[len(s.Pages)-1].HasNext()
}

// Exhausted reports whether pages are loaded and the last one has no next cursor.
func (s Snapshot) Exhausted() bool {
	return len(s.Pages) > 0 && !s.HasMore()
}

// DuplicateIDs returns the record IDs that appear more than once across pages,
// in order of their second appearance. The cursor contract promises disjoint
// pages, so a non-empty result points at a misbehaving remote feed.
func (s Snapshot) DuplicateIDs() []string {
	seen := make(map[string]int)
	var dups []string
	for _, r := range s.Flatten() {
		seen[r.ID]++
		if seen[r.ID] == 2 {
			dups = append(dups, r.ID)
		}
	}
	return dups
}
