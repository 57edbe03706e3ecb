package feed_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gallery-feed/internal/domain/entity"
	"gallery-feed/internal/usecase/feed"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* ───────── test doubles ───────── */

// scriptedFetcher serves pages keyed by cursor and records every call.
type scriptedFetcher struct {
	mu     sync.Mutex
	pages  map[string]entity.FeedPage
	errs   map[string]error
	calls  []string
	gate   chan struct{} // when non-nil, FetchPage blocks until it receives
	called chan string   // when non-nil, receives the cursor key on entry
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		pages: make(map[string]entity.FeedPage),
		errs:  make(map[string]error),
	}
}

func (f *scriptedFetcher) on(cursor entity.Cursor, page entity.FeedPage) *scriptedFetcher {
	f.pages[entity.CursorKey(cursor)] = page
	return f
}

func (f *scriptedFetcher) fail(cursor entity.Cursor, err error) *scriptedFetcher {
	f.errs[entity.CursorKey(cursor)] = err
	return f
}

func (f *scriptedFetcher) FetchPage(ctx context.Context, cursor entity.Cursor) (entity.FeedPage, error) {
	key := entity.CursorKey(cursor)
	f.mu.Lock()
	f.calls = append(f.calls, key)
	gate, called := f.gate, f.called
	f.mu.Unlock()

	if called != nil {
		called <- key
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return entity.FeedPage{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[key]; err != nil {
		return entity.FeedPage{}, err
	}
	return f.pages[key], nil
}

func (f *scriptedFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func rec(id string) entity.Record {
	return entity.Record{ID: id, Title: "t-" + id, URL: "https://i.example.com/" + id + ".png"}
}

func page(next entity.Cursor, ids ...string) entity.FeedPage {
	items := make([]entity.Record, 0, len(ids))
	for _, id := range ids {
		items = append(items, rec(id))
	}
	return entity.FeedPage{Items: items, NextCursor: next}
}

func ids(records []entity.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

// recorder collects events emitted by a cache.
type recorder struct {
	mu     sync.Mutex
	events []feed.Event
}

func (r *recorder) listen(ev feed.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) transitions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.From.String()+"->"+ev.To.String())
	}
	return out
}

/* ───────── state ───────── */

func TestNewCache_Idle(t *testing.T) {
	c := feed.NewCache(newScriptedFetcher())
	defer c.Close()

	assert.Equal(t, feed.StatusIdle, c.Status())
	assert.False(t, c.HasMore())
	assert.Empty(t, c.Flatten())
	assert.Nil(t, c.Cursor())
	assert.False(t, c.Exhausted())
	assert.NoError(t, c.Err())
}

func TestFetchNext_FirstPage(t *testing.T) {
	f := newScriptedFetcher().on(nil, page(entity.CursorAt(100), "a", "b"))
	c := feed.NewCache(f)
	defer c.Close()

	rec := &recorder{}
	c.Subscribe(rec.listen)

	got, err := c.FetchNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, ids(got.Items))
	assert.Equal(t, feed.StatusReady, c.Status())
	assert.True(t, c.HasMore())
	require.NotNil(t, c.Cursor())
	assert.Equal(t, int64(100), *c.Cursor())
	assert.False(t, c.Exhausted())
	assert.Equal(t, []string{"start"}, f.Calls())
	assert.Equal(t, []string{"idle->loading", "loading->ready"}, rec.transitions())
}

func TestFetchNext_AppendsInIssueOrder(t *testing.T) {
	f := newScriptedFetcher().
		on(nil, page(entity.CursorAt(10), "a", "b")).
		on(entity.CursorAt(10), page(entity.CursorAt(20), "c")).
		on(entity.CursorAt(20), page(nil, "d", "e"))
	c := feed.NewCache(f)
	defer c.Close()

	rec := &recorder{}
	c.Subscribe(rec.listen)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := c.FetchNext(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(c.Flatten()))
	assert.Equal(t, []string{"start", "10", "20"}, f.Calls())
	assert.False(t, c.HasMore())
	assert.Nil(t, c.Cursor())
	assert.True(t, c.Exhausted(), "a nil cursor after the last page means exhausted")
	assert.True(t, c.Snapshot().Exhausted())

	want := []string{
		"idle->loading", "loading->ready",
		"ready->loadingMore", "loadingMore->ready",
		"ready->loadingMore", "loadingMore->ready",
	}
	if diff := cmp.Diff(want, rec.transitions()); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchNext_ExhaustedIsNoop(t *testing.T) {
	f := newScriptedFetcher().on(nil, page(nil, "a"))
	c := feed.NewCache(f)
	defer c.Close()

	ctx := context.Background()
	_, err := c.FetchNext(ctx)
	require.NoError(t, err)

	rec := &recorder{}
	c.Subscribe(rec.listen)

	got, err := c.FetchNext(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.Nil(t, got.NextCursor)
	assert.Equal(t, []string{"start"}, f.Calls(), "no external call once exhausted")
	assert.Equal(t, feed.StatusReady, c.Status())
	assert.Empty(t, rec.transitions(), "no event once exhausted")
	assert.Equal(t, []string{"a"}, ids(c.Flatten()))
}

func TestFetchNext_EmptyFirstPage(t *testing.T) {
	f := newScriptedFetcher().on(nil, page(nil))
	c := feed.NewCache(f)
	defer c.Close()

	_, err := c.FetchNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, feed.StatusReady, c.Status())
	assert.Empty(t, c.Flatten())
	assert.False(t, c.HasMore())
}

/* ───────── errors ───────── */

func TestFetchNext_ErrorKeepsPages(t *testing.T) {
	boom := errors.New("connection reset")
	f := newScriptedFetcher().
		on(nil, page(entity.CursorAt(5), "a", "b")).
		fail(entity.CursorAt(5), boom)
	c := feed.NewCache(f)
	defer c.Close()

	ctx := context.Background()
	_, err := c.FetchNext(ctx)
	require.NoError(t, err)

	_, err = c.FetchNext(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var terr *feed.TransportError
	require.ErrorAs(t, err, &terr)
	require.NotNil(t, terr.Cursor)
	assert.Equal(t, int64(5), *terr.Cursor)

	assert.Equal(t, feed.StatusError, c.Status())
	assert.ErrorIs(t, c.Err(), boom)
	assert.Equal(t, []string{"a", "b"}, ids(c.Flatten()))
	assert.True(t, c.HasMore(), "cursor kept so the fetch can be retried")
}

func TestFetchNext_RetryAfterError(t *testing.T) {
	boom := errors.New("timeout")
	f := newScriptedFetcher().fail(nil, boom)
	c := feed.NewCache(f)
	defer c.Close()

	ctx := context.Background()
	_, err := c.FetchNext(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, feed.StatusError, c.Status())
	assert.Empty(t, c.Flatten())

	f.mu.Lock()
	delete(f.errs, "start")
	f.pages["start"] = page(nil, "a")
	f.mu.Unlock()

	rec := &recorder{}
	c.Subscribe(rec.listen)

	_, err = c.FetchNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, feed.StatusReady, c.Status())
	assert.NoError(t, c.Err())
	assert.Equal(t, []string{"start", "start"}, f.Calls())
	assert.Equal(t, []string{"error->loading", "loading->ready"}, rec.transitions())
}

/* ───────── invalidation ───────── */

func TestInvalidate_ResetsToIdle(t *testing.T) {
	f := newScriptedFetcher().
		on(nil, page(entity.CursorAt(1), "a")).
		on(entity.CursorAt(1), page(nil, "b"))
	c := feed.NewCache(f)
	defer c.Close()

	ctx := context.Background()
	_, _ = c.FetchNext(ctx)
	_, _ = c.FetchNext(ctx)
	require.False(t, c.HasMore())

	rec := &recorder{}
	c.Subscribe(rec.listen)

	c.Invalidate()

	assert.Equal(t, feed.StatusIdle, c.Status())
	assert.Empty(t, c.Flatten())
	assert.Nil(t, c.Cursor())
	assert.False(t, c.HasMore())
	assert.Equal(t, []string{"ready->idle"}, rec.transitions())
	assert.Len(t, f.Calls(), 2, "invalidate does not refetch")

	_, err := c.FetchNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "1", "start"}, f.Calls())
	assert.Equal(t, []string{"a"}, ids(c.Flatten()))
}

// After an upload the feed is invalidated and the next fetch starts over,
// so a record created remotely shows up first.
func TestInvalidate_RefetchShowsNewRecordFirst(t *testing.T) {
	f := newScriptedFetcher().on(nil, page(nil, "A", "B"))
	c := feed.NewCache(f)
	defer c.Close()

	ctx := context.Background()
	_, err := c.FetchNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(c.Flatten()))

	f.mu.Lock()
	f.pages["start"] = page(nil, "C", "A", "B")
	f.mu.Unlock()

	c.Invalidate()
	assert.Equal(t, feed.StatusIdle, c.Status())

	_, err = c.FetchNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, ids(c.Flatten()))
}

func TestInvalidate_DiscardsInFlightResult(t *testing.T) {
	f := newScriptedFetcher().on(nil, page(entity.CursorAt(9), "stale"))
	f.gate = make(chan struct{})
	f.called = make(chan string, 4)
	c := feed.NewCache(f)
	defer c.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := c.FetchNext(context.Background())
		errCh <- err
	}()

	<-f.called
	assert.Equal(t, feed.StatusLoading, c.Status())

	c.Invalidate()
	assert.Equal(t, feed.StatusIdle, c.Status())

	close(f.gate)
	assert.ErrorIs(t, <-errCh, feed.ErrDiscarded)
	assert.Empty(t, c.Flatten())
	assert.Equal(t, feed.StatusIdle, c.Status())
}

func TestInvalidate_AllowsNewFetchWhileOldInFlight(t *testing.T) {
	f := newScriptedFetcher().on(nil, page(nil, "fresh"))
	f.gate = make(chan struct{})
	f.called = make(chan string, 4)
	c := feed.NewCache(f)
	defer c.Close()

	oldErr := make(chan error, 1)
	go func() {
		_, err := c.FetchNext(context.Background())
		oldErr <- err
	}()
	<-f.called

	c.Invalidate()

	newErr := make(chan error, 1)
	go func() {
		_, err := c.FetchNext(context.Background())
		newErr <- err
	}()
	<-f.called

	close(f.gate)
	errs := []error{<-oldErr, <-newErr}
	assert.ErrorIs(t, errs[0], feed.ErrDiscarded)
	assert.NoError(t, errs[1])
	assert.Equal(t, []string{"fresh"}, ids(c.Flatten()))
	assert.Equal(t, feed.StatusReady, c.Status())
}

/* ───────── concurrency ───────── */

func TestFetchNext_ConcurrentSameCursorJoins(t *testing.T) {
	f := newScriptedFetcher().on(nil, page(entity.CursorAt(3), "a", "b"))
	f.gate = make(chan struct{})
	f.called = make(chan string, 8)
	c := feed.NewCache(f)
	defer c.Close()

	const callers = 5
	var wg sync.WaitGroup
	var ok atomic.Int32
	ctx := context.Background()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if p, err := c.FetchNext(ctx); err == nil && len(p.Items) == 2 {
			ok.Add(1)
		}
	}()
	<-f.called

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p, err := c.FetchNext(ctx); err == nil && len(p.Items) == 2 {
				ok.Add(1)
			}
		}()
	}

	// Give joiners time to attach to the pending call.
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.Equal(t, int32(callers), ok.Load())
	assert.Equal(t, []string{"start"}, f.Calls(), "exactly one external call")
	assert.Equal(t, []string{"a", "b"}, ids(c.Flatten()), "page appended once")
}

func TestFetchAfter_DifferentCursorRejectedWhileInFlight(t *testing.T) {
	f := newScriptedFetcher().
		on(nil, page(entity.CursorAt(1), "a")).
		on(entity.CursorAt(1), page(nil, "b"))
	c := feed.NewCache(f)
	defer c.Close()

	ctx := context.Background()
	_, err := c.FetchNext(ctx)
	require.NoError(t, err)

	f.mu.Lock()
	f.gate = make(chan struct{})
	f.called = make(chan string, 4)
	f.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := c.FetchAfter(ctx, entity.CursorAt(1))
		done <- err
	}()
	<-f.called
	assert.Equal(t, feed.StatusLoadingMore, c.Status())

	_, err = c.FetchAfter(ctx, nil)
	assert.ErrorIs(t, err, feed.ErrFetchInFlight)

	joined := make(chan error, 1)
	go func() {
		_, err := c.FetchAfter(ctx, entity.CursorAt(1))
		joined <- err
	}()

	close(f.gate)
	require.NoError(t, <-done)
	require.NoError(t, <-joined)
	assert.Equal(t, []string{"start", "1"}, f.Calls())
	assert.Equal(t, []string{"a", "b"}, ids(c.Flatten()))
}

func TestFetchAfter_StaleCursor(t *testing.T) {
	f := newScriptedFetcher().
		on(nil, page(entity.CursorAt(1), "a")).
		on(entity.CursorAt(1), page(entity.CursorAt(2), "b"))
	c := feed.NewCache(f)
	defer c.Close()

	ctx := context.Background()
	_, err := c.FetchAfter(ctx, nil)
	require.NoError(t, err)

	_, err = c.FetchAfter(ctx, nil)
	assert.ErrorIs(t, err, feed.ErrStaleCursor)
	_, err = c.FetchAfter(ctx, entity.CursorAt(7))
	assert.ErrorIs(t, err, feed.ErrStaleCursor)
	assert.Equal(t, feed.StatusReady, c.Status())

	_, err = c.FetchAfter(ctx, entity.CursorAt(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "1"}, f.Calls())
	assert.Equal(t, []string{"a", "b"}, ids(c.Flatten()))
}

func TestFetchNext_ContextCancelWhileJoined(t *testing.T) {
	f := newScriptedFetcher().on(nil, page(nil, "a"))
	f.gate = make(chan struct{})
	f.called = make(chan string, 4)
	c := feed.NewCache(f)
	defer c.Close()

	leader := make(chan error, 1)
	go func() {
		_, err := c.FetchNext(context.Background())
		leader <- err
	}()
	<-f.called

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchNext(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(f.gate)
	require.NoError(t, <-leader)
	assert.Equal(t, []string{"a"}, ids(c.Flatten()))
}

/* ───────── subscription and lifecycle ───────── */

func TestSubscribe_Unsubscribe(t *testing.T) {
	f := newScriptedFetcher().on(nil, page(entity.CursorAt(1), "a"))
	c := feed.NewCache(f)
	defer c.Close()

	var n atomic.Int32
	unsubscribe := c.Subscribe(func(feed.Event) { n.Add(1) })

	_, err := c.FetchNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), n.Load())

	unsubscribe()
	c.Invalidate()
	assert.Equal(t, int32(2), n.Load())
}

func TestSubscribe_ListenerMayReadCache(t *testing.T) {
	f := newScriptedFetcher().on(nil, page(nil, "a", "b"))
	c := feed.NewCache(f)
	defer c.Close()

	var seen []int
	c.Subscribe(func(ev feed.Event) {
		if ev.To == feed.StatusReady {
			seen = append(seen, len(c.Flatten()))
		}
	})

	_, err := c.FetchNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, seen)
}

func TestSubscribe_ListenerMayFetchOnLoading(t *testing.T) {
	f := newScriptedFetcher().on(nil, page(entity.CursorAt(5), "a", "b"))
	c := feed.NewCache(f)
	defer c.Close()

	var (
		joined    entity.FeedPage
		joinedErr error
	)
	c.Subscribe(func(ev feed.Event) {
		if ev.To != feed.StatusLoading {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		joined, joinedErr = c.FetchNext(ctx)
	})

	got, err := c.FetchNext(context.Background())
	require.NoError(t, err)
	require.NoError(t, joinedErr, "listener must join the announced fetch, not wait on itself")

	assert.Equal(t, []string{"a", "b"}, ids(got.Items))
	assert.Equal(t, ids(got.Items), ids(joined.Items))
	assert.Equal(t, []string{"start"}, f.Calls())
	assert.Equal(t, feed.StatusReady, c.Status())
	assert.Equal(t, []string{"a", "b"}, ids(c.Flatten()), "the page is appended once")
}

func TestClose(t *testing.T) {
	f := newScriptedFetcher().on(nil, page(nil, "a"))
	f.gate = make(chan struct{})
	f.called = make(chan string, 4)
	c := feed.NewCache(f)

	var events atomic.Int32
	c.Subscribe(func(feed.Event) { events.Add(1) })

	done := make(chan error, 1)
	go func() {
		_, err := c.FetchNext(context.Background())
		done <- err
	}()
	<-f.called
	before := events.Load()

	c.Close()
	c.Close()

	close(f.gate)
	assert.ErrorIs(t, <-done, feed.ErrDiscarded)
	assert.Equal(t, before, events.Load(), "no events after close")

	_, err := c.FetchNext(context.Background())
	assert.ErrorIs(t, err, feed.ErrClosed)
	assert.Empty(t, c.Flatten())
}

func TestCaches_AreIndependent(t *testing.T) {
	f1 := newScriptedFetcher().on(nil, page(nil, "one"))
	f2 := newScriptedFetcher().on(nil, page(nil, "two"))
	c1 := feed.NewCache(f1, feed.WithName("c1"))
	c2 := feed.NewCache(f2, feed.WithName("c2"))
	defer c1.Close()
	defer c2.Close()

	ctx := context.Background()
	_, err := c1.FetchNext(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"one"}, ids(c1.Flatten()))
	assert.Empty(t, c2.Flatten())
	assert.Equal(t, feed.StatusIdle, c2.Status())

	c1.Invalidate()
	_, err = c2.FetchNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, ids(c2.Flatten()))
}

func TestPageFetcherFunc(t *testing.T) {
	var got entity.Cursor = entity.CursorAt(-1)
	fn := feed.PageFetcherFunc(func(_ context.Context, cursor entity.Cursor) (entity.FeedPage, error) {
		got = cursor
		return page(nil, "x"), nil
	})

	c := feed.NewCache(fn)
	defer c.Close()
	_, err := c.FetchNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}
