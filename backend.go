package caselist

import (
	"context"
	"errors"
)

// ErrNoContent is returned by a Backend when the server confirms the query
// matched an empty dataset. It is a successful empty result, not a failure.
var ErrNoContent = errors.New("caselist: no content")

// Backend resolves one list query against the case API.
// Implementations can be swapped to use different transports.
type Backend interface {
	// Query fetches the page of case summaries described by params.
	// Returns ErrNoContent for a confirmed-empty dataset. The context is
	// cancelled when the request is superseded by a newer one.
	Query(ctx context.Context, params Params) (*ResultPage, error)
}

// PageStore is an optional shared cache tier consulted between the in-memory
// cache and the network. Implementations are best-effort: a store error
// degrades to a network fetch and never fails the query.
type PageStore interface {
	// Get returns the stored page for key, or ok=false on a miss or a
	// stale entry.
	Get(ctx context.Context, key string) (page *ResultPage, ok bool, err error)

	// Put stores a page under key with the current timestamp.
	Put(ctx context.Context, key string, page *ResultPage) error

	// Clear removes all stored pages.
	Clear(ctx context.Context) error
}
