package caselist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casewire/caselist/pkg/metrics"
)

// fakeBackend routes queries through a configurable function and counts
// calls.
type fakeBackend struct {
	calls int64
	fn    func(ctx context.Context, params Params) (*ResultPage, error)
}

func (b *fakeBackend) Query(ctx context.Context, params Params) (*ResultPage, error) {
	atomic.AddInt64(&b.calls, 1)
	return b.fn(ctx, params)
}

func (b *fakeBackend) callCount() int64 {
	return atomic.LoadInt64(&b.calls)
}

// fakeStore is an in-memory PageStore that records puts.
type fakeStore struct {
	mu    sync.Mutex
	pages map[string]*ResultPage
	puts  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{pages: make(map[string]*ResultPage)}
}

func (s *fakeStore) Get(ctx context.Context, key string) (*ResultPage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[key]
	if !ok {
		return nil, false, nil
	}
	return page.Clone(), true, nil
}

func (s *fakeStore) Put(ctx context.Context, key string, page *ResultPage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[key] = page.Clone()
	s.puts++
	return nil
}

func (s *fakeStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = make(map[string]*ResultPage)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pageFor(params Params, total int) *ResultPage {
	rows := make([]CaseSummary, params.PageSize/10)
	for i := range rows {
		rows[i] = CaseSummary{ID: params.Key(), Title: params.Search, Status: "open"}
	}
	return &ResultPage{
		Rows:       rows,
		Pagination: Pagination{Total: total, Page: params.Page, PageSize: params.PageSize},
		Performance: Performance{
			QueryTime:    7 * time.Millisecond,
			ResponseSize: 1024,
		},
	}
}

func waitForSettled(t *testing.T, f *Fetcher) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		snap := f.State()
		return !snap.Loading && !snap.LoadingMore
	}, 2*time.Second, 5*time.Millisecond)
	return f.State()
}

func TestFetcherFreshLoad(t *testing.T) {
	backend := &fakeBackend{fn: func(_ context.Context, params Params) (*ResultPage, error) {
		return pageFor(params, 57), nil
	}}
	f := NewFetcher(backend, FetcherConfig{Logger: quietLogger()})
	defer f.Close()

	require.NoError(t, f.Load(DefaultParams()))
	snap := waitForSettled(t, f)

	assert.Len(t, snap.Rows, 2)
	assert.Equal(t, 57, snap.Total)
	assert.Equal(t, 1, snap.Page)
	assert.NoError(t, snap.Err)
	require.NotNil(t, snap.Performance)
	assert.False(t, snap.Performance.CacheHit)
	assert.False(t, snap.LastRefresh.IsZero())
	assert.EqualValues(t, 1, backend.callCount())
}

func TestFetcherSecondLoadServedFromCache(t *testing.T) {
	backend := &fakeBackend{fn: func(_ context.Context, params Params) (*ResultPage, error) {
		return pageFor(params, 57), nil
	}}
	tracker := metrics.NewQueryTracker(0.01)
	f := NewFetcher(backend, FetcherConfig{Tracker: tracker, Logger: quietLogger()})
	defer f.Close()

	require.NoError(t, f.Load(DefaultParams()))
	waitForSettled(t, f)

	// Same query within the TTL: no network call, cacheHit reported.
	require.NoError(t, f.Load(DefaultParams()))
	snap := waitForSettled(t, f)

	assert.EqualValues(t, 1, backend.callCount())
	require.NotNil(t, snap.Performance)
	assert.True(t, snap.Performance.CacheHit)

	hits, misses := tracker.Counts()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
}

func TestFetcherRefreshBypassesCache(t *testing.T) {
	backend := &fakeBackend{fn: func(_ context.Context, params Params) (*ResultPage, error) {
		return pageFor(params, 57), nil
	}}
	f := NewFetcher(backend, FetcherConfig{Logger: quietLogger()})
	defer f.Close()

	require.NoError(t, f.Load(DefaultParams()))
	waitForSettled(t, f)

	require.NoError(t, f.Refresh())
	snap := waitForSettled(t, f)

	assert.EqualValues(t, 2, backend.callCount())
	require.NotNil(t, snap.Performance)
	assert.False(t, snap.Performance.CacheHit)
}

func TestFetcherSupersession(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	backend := &fakeBackend{fn: func(ctx context.Context, params Params) (*ResultPage, error) {
		if params.Search == "slow" {
			close(started)
			// The slow first query resolves only after the fast
			// second one, and must still lose.
			<-release
			return pageFor(params, 111), nil
		}
		return pageFor(params, 222), nil
	}}
	f := NewFetcher(backend, FetcherConfig{Logger: quietLogger()})
	defer f.Close()

	q1 := DefaultParams()
	q1.Search = "slow"
	require.NoError(t, f.Load(q1))
	<-started

	q2 := DefaultParams()
	q2.Search = "fast"
	require.NoError(t, f.Load(q2))
	snap := waitForSettled(t, f)
	require.Equal(t, 222, snap.Total)

	// Let the superseded response arrive; it must be ignored.
	close(release)
	time.Sleep(50 * time.Millisecond)

	snap = f.State()
	assert.Equal(t, 222, snap.Total)
	assert.Equal(t, "fast", snap.Rows[0].Title)
	assert.NoError(t, snap.Err)
}

func TestFetcherLoadMoreAppends(t *testing.T) {
	backend := &fakeBackend{fn: func(_ context.Context, params Params) (*ResultPage, error) {
		return pageFor(params, 100), nil
	}}
	f := NewFetcher(backend, FetcherConfig{Logger: quietLogger()})
	defer f.Close()

	require.NoError(t, f.Load(DefaultParams()))
	first := waitForSettled(t, f)
	require.Len(t, first.Rows, 2)

	require.NoError(t, f.LoadMore())
	snap := waitForSettled(t, f)

	assert.Len(t, snap.Rows, 4, "load-more concatenates instead of replacing")
	assert.Equal(t, 2, snap.Page)
	assert.EqualValues(t, 2, backend.callCount(), "append queries always hit the network")

	// Appended rows follow the fresh rows in order.
	assert.Equal(t, first.Rows[0].ID, snap.Rows[0].ID)
}

func TestFetcherLoadMoreSkipsCache(t *testing.T) {
	backend := &fakeBackend{fn: func(_ context.Context, params Params) (*ResultPage, error) {
		return pageFor(params, 100), nil
	}}
	f := NewFetcher(backend, FetcherConfig{Logger: quietLogger()})
	defer f.Close()

	require.NoError(t, f.Load(DefaultParams()))
	waitForSettled(t, f)
	require.NoError(t, f.LoadMore())
	waitForSettled(t, f)

	// A second load-more for the same cumulative view goes to the
	// network again even though page 2 was just fetched.
	require.NoError(t, f.LoadMore())
	waitForSettled(t, f)
	assert.EqualValues(t, 3, backend.callCount())
}

func TestFetcherLoadMoreWithoutLoad(t *testing.T) {
	backend := &fakeBackend{fn: func(_ context.Context, params Params) (*ResultPage, error) {
		return pageFor(params, 100), nil
	}}
	f := NewFetcher(backend, FetcherConfig{Logger: quietLogger()})
	defer f.Close()

	assert.Error(t, f.LoadMore())
	assert.Error(t, f.Refresh())
	assert.Error(t, f.Retry())
}

func TestFetcherEmptyDatasetIsNotAnError(t *testing.T) {
	backend := &fakeBackend{fn: func(_ context.Context, params Params) (*ResultPage, error) {
		return nil, ErrNoContent
	}}
	f := NewFetcher(backend, FetcherConfig{Logger: quietLogger()})
	defer f.Close()

	require.NoError(t, f.Load(DefaultParams()))
	snap := waitForSettled(t, f)

	assert.NotNil(t, snap.Rows)
	assert.Empty(t, snap.Rows)
	assert.NoError(t, snap.Err)
}

func TestFetcherFreshErrorClearsRows(t *testing.T) {
	var fail atomic.Bool
	backend := &fakeBackend{fn: func(_ context.Context, params Params) (*ResultPage, error) {
		if fail.Load() {
			return nil, errors.New("boom")
		}
		return pageFor(params, 57), nil
	}}
	f := NewFetcher(backend, FetcherConfig{Logger: quietLogger()})
	defer f.Close()

	require.NoError(t, f.Load(DefaultParams()))
	waitForSettled(t, f)

	// A fresh query under new filters fails: stale rows must not be shown.
	fail.Store(true)
	failing := DefaultParams()
	failing.Status = "closed"
	require.NoError(t, f.Load(failing))
	snap := waitForSettled(t, f)

	assert.Empty(t, snap.Rows)
	assert.Error(t, snap.Err)

	// Retry re-runs the same fresh query.
	fail.Store(false)
	require.NoError(t, f.Retry())
	snap = waitForSettled(t, f)
	assert.NoError(t, snap.Err)
	assert.Len(t, snap.Rows, 2)
	assert.Contains(t, snap.Rows[0].ID, "st=closed")
}

func TestFetcherAppendErrorKeepsRows(t *testing.T) {
	var fail atomic.Bool
	backend := &fakeBackend{fn: func(_ context.Context, params Params) (*ResultPage, error) {
		if fail.Load() {
			return nil, errors.New("boom")
		}
		return pageFor(params, 100), nil
	}}
	f := NewFetcher(backend, FetcherConfig{Logger: quietLogger()})
	defer f.Close()

	require.NoError(t, f.Load(DefaultParams()))
	first := waitForSettled(t, f)
	require.Len(t, first.Rows, 2)

	fail.Store(true)
	require.NoError(t, f.LoadMore())
	snap := waitForSettled(t, f)

	assert.Len(t, snap.Rows, 2, "append failure keeps what was loaded")
	assert.Error(t, snap.Err)
}

func TestFetcherStoreTier(t *testing.T) {
	backend := &fakeBackend{fn: func(_ context.Context, params Params) (*ResultPage, error) {
		return pageFor(params, 57), nil
	}}
	shared := newFakeStore()
	params := DefaultParams()
	seeded := pageFor(params, 999)
	require.NoError(t, shared.Put(context.Background(), params.Key(), seeded))

	f := NewFetcher(backend, FetcherConfig{Store: shared, Logger: quietLogger()})
	defer f.Close()

	// Served from the shared tier without a network call.
	require.NoError(t, f.Load(params))
	snap := waitForSettled(t, f)
	assert.Equal(t, 999, snap.Total)
	require.NotNil(t, snap.Performance)
	assert.True(t, snap.Performance.CacheHit)
	assert.EqualValues(t, 0, backend.callCount())

	// A miss in both tiers populates the shared store.
	other := params
	other.Search = "unseen"
	require.NoError(t, f.Load(other))
	waitForSettled(t, f)
	assert.EqualValues(t, 1, backend.callCount())
	shared.mu.Lock()
	_, stored := shared.pages[other.Key()]
	shared.mu.Unlock()
	assert.True(t, stored)
}

func TestFetcherInvalidParams(t *testing.T) {
	backend := &fakeBackend{fn: func(_ context.Context, params Params) (*ResultPage, error) {
		return pageFor(params, 57), nil
	}}
	f := NewFetcher(backend, FetcherConfig{Logger: quietLogger()})
	defer f.Close()

	assert.Error(t, f.Load(Params{Page: 0, PageSize: 20}))
	assert.Error(t, f.Load(Params{Page: 1, PageSize: 33}))
	assert.EqualValues(t, 0, backend.callCount())
}

func TestFetcherOnChange(t *testing.T) {
	backend := &fakeBackend{fn: func(_ context.Context, params Params) (*ResultPage, error) {
		return pageFor(params, 57), nil
	}}
	f := NewFetcher(backend, FetcherConfig{Logger: quietLogger()})
	defer f.Close()

	var mu sync.Mutex
	var snaps []Snapshot
	f.OnChange(func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	require.NoError(t, f.Load(DefaultParams()))
	waitForSettled(t, f)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(snaps), 2)
	assert.True(t, snaps[0].Loading, "first notification is the loading state")
	last := snaps[len(snaps)-1]
	assert.False(t, last.Loading)
	assert.Len(t, last.Rows, 2)
}

func TestFetcherBindSearchDebounces(t *testing.T) {
	backend := &fakeBackend{fn: func(_ context.Context, params Params) (*ResultPage, error) {
		return pageFor(params, 57), nil
	}}
	f := NewFetcher(backend, FetcherConfig{Logger: quietLogger()})
	defer f.Close()

	search := f.BindSearch(50 * time.Millisecond)
	defer search.Close()

	search.Input("s")
	search.Input("sm")
	search.Input("smi")
	search.Input("smith")

	require.Eventually(t, func() bool {
		snap := f.State()
		return len(snap.Rows) > 0 && snap.Rows[0].Title == "smith"
	}, 2*time.Second, 5*time.Millisecond)

	// Only the settled value became a query.
	assert.EqualValues(t, 1, backend.callCount())
}
