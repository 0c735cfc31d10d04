package caselist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casewire/caselist/pkg/metrics"
)

// FetcherConfig configures a Fetcher. The zero value gives the defaults:
// 5 minute TTL, 100 cached pages, no shared store, no tracker.
type FetcherConfig struct {
	CacheTTL      time.Duration
	CacheCapacity int

	// Store is an optional shared page tier consulted between the
	// in-memory cache and the network for fresh queries.
	Store PageStore

	// Tracker receives query latencies and hit/miss counts when set.
	Tracker *metrics.QueryTracker

	Logger *slog.Logger
}

// Fetcher resolves list queries for one screen instance, consulting the
// in-memory cache first, the shared store second and the network last. At
// most one in-flight request is authoritative at any time: starting a new
// query cancels the previous one, and a response carrying a stale generation
// is dropped even if the transport-level abort never took effect.
type Fetcher struct {
	backend Backend
	cache   *pageCache
	store   PageStore
	tracker *metrics.QueryTracker
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.Mutex
	state      *ViewState
	gen        uint64
	cancel     context.CancelFunc
	current    Params
	hasCurrent bool
}

// NewFetcher creates a fetcher over the given backend.
func NewFetcher(backend Backend, cfg FetcherConfig) *Fetcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		backend: backend,
		cache:   newPageCache(cfg.CacheTTL, cfg.CacheCapacity),
		store:   cfg.Store,
		tracker: cfg.Tracker,
		logger:  logger,
		now:     time.Now,
		state:   NewViewState(DefaultParams().PageSize),
	}
}

// State returns a snapshot of the current view state.
func (f *Fetcher) State() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.snapshot()
}

// OnChange registers a listener for view-state changes. The listener runs
// outside the fetcher's lock and may call back into the fetcher.
func (f *Fetcher) OnChange(fn func(Snapshot)) {
	f.mu.Lock()
	f.state.OnChange(fn)
	f.mu.Unlock()
}

// Load runs a fresh query: the rendered rows are replaced by the result.
// Any in-flight request is superseded. Returns an error only for invalid
// params; fetch outcomes are reported through the view state.
func (f *Fetcher) Load(params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	f.start(params, false)
	return nil
}

// LoadMore runs an append query for the page after the one currently shown.
// Append queries always go to the network; merging cached pages into
// cumulative rows would be ambiguous about position. Repeating the same
// load-more appends duplicate rows; callers gate on LoadingMore.
func (f *Fetcher) LoadMore() error {
	f.mu.Lock()
	if !f.hasCurrent {
		f.mu.Unlock()
		return errors.New("caselist: no query loaded")
	}
	params := f.current
	params.Page = f.state.snapshot().Page + 1
	f.mu.Unlock()

	f.start(params, true)
	return nil
}

// Refresh clears every cache tier and re-runs the last fresh query against
// the network.
func (f *Fetcher) Refresh() error {
	f.mu.Lock()
	if !f.hasCurrent {
		f.mu.Unlock()
		return errors.New("caselist: no query loaded")
	}
	params := f.current
	f.mu.Unlock()

	f.cache.clear()
	if f.store != nil {
		if err := f.store.Clear(context.Background()); err != nil {
			f.logger.Warn("failed to clear page store", "error", err)
		}
	}
	f.start(params, false)
	return nil
}

// Retry re-runs the last fresh query after a failure. The cache was never
// populated for a failed key, so this goes back to the network.
func (f *Fetcher) Retry() error {
	f.mu.Lock()
	if !f.hasCurrent {
		f.mu.Unlock()
		return errors.New("caselist: no query loaded")
	}
	params := f.current
	f.mu.Unlock()

	f.start(params, false)
	return nil
}

// BindSearch returns a debounced bridge for the search input. Each settled
// value runs a fresh query on page 1 with the filters currently in effect.
func (f *Fetcher) BindSearch(delay time.Duration) *SearchDebouncer {
	return NewSearchDebouncer(delay, func(text string) {
		f.mu.Lock()
		params := f.current
		if !f.hasCurrent {
			params = DefaultParams()
		}
		f.mu.Unlock()

		params.Search = text
		params.Page = 1
		if err := f.Load(params); err != nil {
			f.logger.Warn("debounced search load failed", "error", err)
		}
	})
}

// Close supersedes any in-flight request and drops its eventual response.
func (f *Fetcher) Close() {
	f.mu.Lock()
	f.gen++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.mu.Unlock()
}

// start begins one query lifecycle. The generation counter is the request's
// identity: any completion tagged with an older generation is ignored.
func (f *Fetcher) start(params Params, appendMode bool) {
	requestID := uuid.NewString()
	key := params.Key()

	f.mu.Lock()
	f.gen++
	gen := f.gen
	if f.cancel != nil {
		// Supersede: ask the transport to abort. Whether or not the
		// abort lands, the old generation can no longer apply.
		f.cancel()
		f.cancel = nil
	}
	if !appendMode {
		f.current = params
		f.hasCurrent = true
	}

	if !appendMode {
		if page, ok := f.cache.get(key); ok {
			page.Performance.CacheHit = true
			if f.tracker != nil {
				f.tracker.RecordHit(page.Performance.QueryTime)
			}
			snap, listener := f.state.mutate(freshMutation(page, f.now()))
			f.mu.Unlock()
			f.logger.Debug("case list served from cache",
				"requestID", requestID, "key", key)
			if listener != nil {
				listener(snap)
			}
			return
		}
		if f.tracker != nil {
			f.tracker.RecordMiss()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	snap, listener := f.state.mutate(loadingMutation(appendMode))
	f.mu.Unlock()

	if listener != nil {
		listener(snap)
	}

	go f.fetch(ctx, gen, requestID, params, appendMode, key)
}

// fetch resolves one query against the shared store and the backend, then
// applies the outcome if this generation is still authoritative.
func (f *Fetcher) fetch(ctx context.Context, gen uint64, requestID string, params Params, appendMode bool, key string) {
	if !appendMode && f.store != nil {
		page, ok, err := f.store.Get(ctx, key)
		switch {
		case err != nil:
			f.logger.Warn("page store read failed",
				"requestID", requestID, "key", key, "error", err)
		case ok:
			page.Performance.CacheHit = true
			f.cache.set(key, page)
			if f.tracker != nil {
				f.tracker.RecordHit(page.Performance.QueryTime)
			}
			f.logger.Debug("case list served from page store",
				"requestID", requestID, "key", key)
			f.apply(gen, freshMutation(page, f.now()))
			return
		}
	}

	start := time.Now()
	page, err := f.backend.Query(ctx, params)
	if f.tracker != nil {
		f.tracker.Record("fetch", time.Since(start))
	}

	switch {
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		// Superseded. Not an error, never surfaced.
		f.logger.Debug("case list fetch superseded", "requestID", requestID)

	case errors.Is(err, ErrNoContent):
		f.logger.Debug("case list query matched empty dataset",
			"requestID", requestID, "key", key)
		f.apply(gen, emptyMutation(appendMode))

	case err != nil:
		f.logger.Warn("case list fetch failed",
			"requestID", requestID, "key", key, "error", err)
		f.apply(gen, errorMutation(fmt.Errorf("fetching case list: %w", err), appendMode))

	case appendMode:
		f.apply(gen, appendMutation(page))

	default:
		f.cache.set(key, page)
		if f.store != nil {
			if serr := f.store.Put(ctx, key, page); serr != nil {
				f.logger.Warn("page store write failed",
					"requestID", requestID, "key", key, "error", serr)
			}
		}
		f.apply(gen, freshMutation(page, f.now()))
	}
}

// apply runs a view-state mutation if gen is still the authoritative
// generation. The listener is notified after the lock is released.
func (f *Fetcher) apply(gen uint64, mutation func(*Snapshot)) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	snap, listener := f.state.mutate(mutation)
	f.mu.Unlock()

	if listener != nil {
		listener(snap)
	}
}
