// Package caselist is the query, cache and synchronization layer behind a
// case-management list screen. A Fetcher resolves list queries against the
// case API with abort-on-supersede ordering, memoizing pages in a TTL cache
// bounded by FIFO eviction, optionally backed by a shared page store tier.
// A SearchDebouncer settles free-text input before it becomes a query, and
// a ViewState snapshot is the only surface the rendering layer consumes.
package caselist
