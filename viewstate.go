package caselist

import (
	"time"
)

// Snapshot is an immutable view of the list screen's state. Everything the
// rendering layer needs is here: rows, pagination, the loading flags, the
// retryable error if any, and the telemetry of the last response.
type Snapshot struct {
	Rows        []CaseSummary
	Total       int
	Page        int
	PageSize    int
	Loading     bool
	LoadingMore bool
	Err         error
	Performance *Performance
	LastRefresh time.Time
}

// ViewState is the single source of truth rendered by the list screen. Only
// the fetcher's callbacks mutate it; the UI layer reads snapshots and may
// register a listener to observe changes.
//
// ViewState has no lock of its own. The owning Fetcher serializes every
// mutation, and listener notification happens after the fetcher releases its
// lock so a listener may call back into the fetcher.
type ViewState struct {
	snap     Snapshot
	listener func(Snapshot)
}

// NewViewState returns an empty view state for the given initial page size.
func NewViewState(pageSize int) *ViewState {
	return &ViewState{snap: Snapshot{Page: 1, PageSize: pageSize}}
}

// OnChange registers fn to be called with a snapshot after every mutation.
// Passing nil removes the listener. Must be set up before queries start.
func (v *ViewState) OnChange(fn func(Snapshot)) {
	v.listener = fn
}

// mutate applies fn to the state and returns the resulting snapshot along
// with the listener to notify. Callers hold the fetcher lock here and invoke
// the listener only after releasing it.
func (v *ViewState) mutate(fn func(*Snapshot)) (Snapshot, func(Snapshot)) {
	fn(&v.snap)
	return v.snap, v.listener
}

// snapshot returns a copy of the current state. The row slice is shared but
// never mutated in place, only replaced.
func (v *ViewState) snapshot() Snapshot {
	return v.snap
}

// loadingMutation marks a query as in flight. Fresh queries set Loading,
// append queries set LoadingMore; both clear any previous error.
func loadingMutation(appendMode bool) func(*Snapshot) {
	return func(s *Snapshot) {
		if appendMode {
			s.LoadingMore = true
		} else {
			s.Loading = true
		}
		s.Err = nil
	}
}

// freshMutation replaces the rendered rows with a new page and stamps the
// last-refresh time. The timestamp is display-only.
func freshMutation(page *ResultPage, at time.Time) func(*Snapshot) {
	return func(s *Snapshot) {
		s.Rows = page.Rows
		s.Total = page.Pagination.Total
		s.Page = page.Pagination.Page
		s.PageSize = page.Pagination.PageSize
		s.Loading = false
		s.LoadingMore = false
		s.Err = nil
		perf := page.Performance
		s.Performance = &perf
		s.LastRefresh = at
	}
}

// appendMutation concatenates a load-more page onto the rendered rows. The
// row slice is rebuilt rather than grown in place so older snapshots stay
// valid.
func appendMutation(page *ResultPage) func(*Snapshot) {
	return func(s *Snapshot) {
		rows := make([]CaseSummary, 0, len(s.Rows)+len(page.Rows))
		rows = append(rows, s.Rows...)
		rows = append(rows, page.Rows...)
		s.Rows = rows
		s.Total = page.Pagination.Total
		s.Page = page.Pagination.Page
		s.Loading = false
		s.LoadingMore = false
		s.Err = nil
		perf := page.Performance
		s.Performance = &perf
	}
}

// emptyMutation records a confirmed-empty dataset. Fresh queries show the
// empty state; append queries keep what was already loaded.
func emptyMutation(appendMode bool) func(*Snapshot) {
	return func(s *Snapshot) {
		if !appendMode {
			s.Rows = []CaseSummary{}
			s.Total = 0
		}
		s.Loading = false
		s.LoadingMore = false
		s.Err = nil
		s.Performance = nil
	}
}

// errorMutation records a retryable failure. A fresh-query failure clears
// the rows, since the filters in effect were never verified against the
// server; an append failure keeps the rows already loaded.
func errorMutation(err error, appendMode bool) func(*Snapshot) {
	return func(s *Snapshot) {
		if !appendMode {
			s.Rows = []CaseSummary{}
			s.Total = 0
		}
		s.Loading = false
		s.LoadingMore = false
		s.Err = err
		s.Performance = nil
	}
}
