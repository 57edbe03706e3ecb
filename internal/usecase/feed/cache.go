package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gallery-feed/internal/domain/entity"
	"gallery-feed/internal/observability/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PageFetcher is the remote capability the cache delegates to.
// A nil cursor requests the first page.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor entity.Cursor) (entity.FeedPage, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, cursor entity.Cursor) (entity.FeedPage, error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, cursor entity.Cursor) (entity.FeedPage, error) {
	return f(ctx, cursor)
}

// Option configures a Cache.
type Option func(*Cache)

// WithName sets the name used in logs and metric labels. Default: "images".
func WithName(name string) Option {
	return func(c *Cache) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// call is a fetch in flight. Callers asking for the same cursor wait on fetched
// and share its result instead of issuing a second request. The external call
// runs on its own goroutine; the first waiter to see it return applies the
// result to the cache, exactly once.
type call struct {
	key    string
	cursor entity.Cursor
	gen    uint64
	span   trace.Span

	fetched chan struct{}
	raw     entity.FeedPage
	rawErr  error

	apply sync.Once
	page  entity.FeedPage
	err   error
}

// Cache accumulates fetched feed pages in issue order.
//
// A Cache is an explicit instance with a create, use, Close lifecycle; nothing
// is shared between instances. All methods are safe for concurrent use. At most
// one fetch is in flight at a time: callers for the same cursor join it, callers
// for another cursor get ErrFetchInFlight.
type Cache struct {
	fetcher PageFetcher
	name    string
	logger  *slog.Logger

	mu         sync.Mutex
	pages      []entity.FeedPage
	status     Status
	lastErr    error
	generation uint64
	inflight   *call
	closed     bool
	listeners  map[int]Listener
	nextID     int

	events      []Event
	dispatching bool
}

// NewCache creates an idle cache backed by fetcher.
func NewCache(fetcher PageFetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:   fetcher,
		name:      "images",
		logger:    slog.Default(),
		status:    StatusIdle,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	setCachedItems(c.name, 0)
	return c
}

// FetchNext fetches the page following the current cursor and appends it.
//
// The cursor is absent for the first page and the last page's NextCursor
// afterwards. When a page is loaded and HasMore is false the call is a no-op:
// no external call, no state change, an empty page and a nil error.
//
// On failure the status becomes StatusError, loaded pages are kept and the
// fetcher error is returned wrapped in a *TransportError. Nothing is retried;
// calling FetchNext again retries from the same cursor.
func (c *Cache) FetchNext(ctx context.Context) (entity.FeedPage, error) {
	return c.fetchNext(ctx, nil, false)
}

// FetchAfter is FetchNext for a caller that holds the cursor it expects to be
// current. A call for the cursor of a pending fetch joins it. A call for any
// other cursor fails with ErrFetchInFlight while a fetch is pending and with
// ErrStaleCursor otherwise.
func (c *Cache) FetchAfter(ctx context.Context, cursor entity.Cursor) (entity.FeedPage, error) {
	return c.fetchNext(ctx, cursor, true)
}

func (c *Cache) fetchNext(ctx context.Context, want entity.Cursor, explicit bool) (entity.FeedPage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return entity.FeedPage{}, ErrClosed
	}

	cursor := c.cursorLocked()
	if explicit {
		cursor = want
	}
	key := fmt.Sprintf("%d/%s", c.generation, entity.CursorKey(cursor))

	if inflight := c.inflight; inflight != nil {
		c.mu.Unlock()
		if inflight.key != key {
			recordFetch(c.name, resultRejected)
			return entity.FeedPage{}, ErrFetchInFlight
		}
		return c.await(ctx, inflight)
	}

	if c.exhaustedLocked() {
		c.mu.Unlock()
		recordFetch(c.name, resultExhausted)
		return entity.FeedPage{}, nil
	}
	if explicit && entity.CursorKey(want) != entity.CursorKey(c.cursorLocked()) {
		c.mu.Unlock()
		recordFetch(c.name, resultRejected)
		return entity.FeedPage{}, ErrStaleCursor
	}

	cl := &call{key: key, cursor: cursor, gen: c.generation, fetched: make(chan struct{})}
	c.inflight = cl
	to := StatusLoadingMore
	if len(c.pages) == 0 {
		to = StatusLoading
	}
	c.transitionLocked(to, nil)
	c.mu.Unlock()

	fetchCtx, span := tracing.StartClientSpan(ctx, "feed_cache.fetch_next",
		attribute.String("feed.cache", c.name),
		attribute.String("feed.cursor", entity.CursorKey(cursor)))
	cl.span = span
	go c.run(fetchCtx, cl)

	// A listener may join cl from here; it waits on the external call, not on us.
	c.dispatch()

	<-cl.fetched
	return c.finish(cl)
}

// await waits for cl as a joiner. Only the joiner's own ctx can cut the wait short.
func (c *Cache) await(ctx context.Context, cl *call) (entity.FeedPage, error) {
	select {
	case <-cl.fetched:
		return c.finish(cl)
	case <-ctx.Done():
		return entity.FeedPage{}, ctx.Err()
	}
}

// run performs the external call for cl.
func (c *Cache) run(ctx context.Context, cl *call) {
	defer close(cl.fetched)
	start := time.Now()
	cl.raw, cl.rawErr = c.fetcher.FetchPage(ctx, cl.cursor)
	recordFetchDuration(c.name, time.Since(start))
}

func (c *Cache) finish(cl *call) (entity.FeedPage, error) {
	cl.apply.Do(func() { cl.page, cl.err = c.applyResult(cl) })
	return cl.page, cl.err
}

// applyResult folds the outcome of cl's external call into the cache.
func (c *Cache) applyResult(cl *call) (entity.FeedPage, error) {
	cursor, span := cl.cursor, cl.span
	page, err := cl.raw, cl.rawErr

	c.mu.Lock()
	if c.inflight == cl {
		c.inflight = nil
	}
	// Invalidated or torn down while the request was out: the result belongs
	// to a cache state that no longer exists.
	if c.closed || cl.gen != c.generation {
		c.mu.Unlock()
		recordFetch(c.name, resultDiscarded)
		c.logger.Debug("feed page discarded",
			slog.String("cache", c.name),
			slog.String("cursor", entity.CursorKey(cursor)))
		tracing.EndSpan(span, ErrDiscarded)
		return entity.FeedPage{}, ErrDiscarded
	}

	if err != nil {
		terr := &TransportError{Cursor: cursor, Err: err}
		c.lastErr = terr
		c.transitionLocked(StatusError, terr)
		pages := len(c.pages)
		c.mu.Unlock()

		recordFetch(c.name, resultError)
		c.logger.Warn("feed page fetch failed",
			slog.String("cache", c.name),
			slog.String("cursor", entity.CursorKey(cursor)),
			slog.Int("pages_kept", pages),
			slog.Any("error", err))
		tracing.EndSpan(span, terr)
		c.dispatch()
		return entity.FeedPage{}, terr
	}

	c.pages = append(c.pages, page)
	c.lastErr = nil
	c.transitionLocked(StatusReady, nil)
	items := c.itemCountLocked()
	c.mu.Unlock()

	recordFetch(c.name, resultSuccess)
	setCachedItems(c.name, items)
	c.logger.Debug("feed page appended",
		slog.String("cache", c.name),
		slog.String("cursor", entity.CursorKey(cursor)),
		slog.Int("items", len(page.Items)),
		slog.Bool("has_more", page.HasNext()))
	span.SetAttributes(attribute.Int("feed.items", len(page.Items)))
	tracing.EndSpan(span, nil)
	c.dispatch()
	return page, nil
}

// HasMore reports whether the most recently appended page has a next cursor.
// It is false while no page is loaded.
func (c *Cache) HasMore() bool {
	return c.Snapshot().HasMore()
}

// Invalidate clears all pages, resets the cursor and returns to StatusIdle.
// It does not refetch; the next FetchNext starts from the first page.
// A fetch still in flight is discarded when it completes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pages = nil
	c.lastErr = nil
	c.generation++
	c.inflight = nil
	c.transitionLocked(StatusIdle, nil)
	c.mu.Unlock()

	recordInvalidation(c.name)
	setCachedItems(c.name, 0)
	c.logger.Debug("feed cache invalidated", slog.String("cache", c.name))
	c.dispatch()
}

// Flatten returns the concatenation of all pages' items, in page order.
// It is recomputed on every call and always reflects the current pages.
func (c *Cache) Flatten() []entity.Record {
	return c.Snapshot().Flatten()
}

// Status returns the current status.
func (c *Cache) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the error of the last failed fetch while the status is StatusError.
func (c *Cache) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Exhausted reports whether the last page of the feed has been loaded.
// FetchNext is a no-op while it is true.
func (c *Cache) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhaustedLocked()
}

// Cursor returns the cursor the next FetchNext will use. It is nil both before
// the first page and once the feed is exhausted; Exhausted tells them apart.
func (c *Cache) Cursor() entity.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.cursorLocked()
	if cur == nil {
		return nil
	}
	return entity.CursorAt(*cur)
}

// Snapshot returns a consistent copy of pages, status and last error.
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	pages := make([]entity.FeedPage, len(c.pages))
	copy(pages, c.pages)
	return Snapshot{Pages: pages, Status: c.status, Err: c.lastErr}
}

// Subscribe registers l to receive an Event on every state transition.
// Listeners run outside the cache lock, one event at a time and in transition
// order, so they may call back into the cache. Events caused by a listener are
// delivered after it returns. A FetchNext made from a loading event joins the
// fetch being announced and returns its result.
// The returned function removes the listener.
func (c *Cache) Subscribe(l Listener) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close tears the cache down. Results of fetches still in flight are
// discarded, listeners are dropped and later FetchNext calls return ErrClosed.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.generation++
	c.inflight = nil
	c.listeners = make(map[int]Listener)
	c.events = nil
}

func (c *Cache) exhaustedLocked() bool {
	return len(c.pages) > 0 && !c.pages[len(c.pages)-1].HasNext()
}

func (c *Cache) cursorLocked() entity.Cursor {
	if len(c.pages) == 0 {
		return nil
	}
	return c.pages[len(c.pages)-1].NextCursor
}

func (c *Cache) itemCountLocked() int {
	n := 0
	for _, p := range c.pages {
		n += len(p.Items)
	}
	return n
}

// transitionLocked moves to status to and queues the event for dispatch.
func (c *Cache) transitionLocked(to Status, err error) {
	c.events = append(c.events, Event{From: c.status, To: to, Pages: len(c.pages), Err: err})
	c.status = to
}

// dispatch delivers queued events in order, outside the lock. Only one
// goroutine delivers at a time; an event queued during delivery, including by
// a listener, is delivered by that goroutine after the current one.
func (c *Cache) dispatch() {
	c.mu.Lock()
	if c.dispatching {
		c.mu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.events) > 0 {
		ev := c.events[0]
		c.events = c.events[1:]
		listeners := c.listenersLocked()
		c.mu.Unlock()
		notify(listeners, ev)
		c.mu.Lock()
	}
	c.dispatching = false
	c.mu.Unlock()
}

func (c *Cache) listenersLocked() []Listener {
	out := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		out = append(out, l)
	}
	return out
}

func notify(listeners []Listener, ev Event) {
	for _, l := range listeners {
		l(ev)
	}
}
