package backends

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/casewire/caselist"
)

// Debug wraps any Backend and adds debug logging.
// This allows any backend implementation to have debug logging without
// coupling the debug logic to the backend implementation.
type Debug struct {
	backend caselist.Backend
	logger  *slog.Logger
}

// NewDebug creates a new debug wrapper around an existing backend.
func NewDebug(backend caselist.Backend, logger *slog.Logger) *Debug {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debug{
		backend: backend,
		logger:  logger,
	}
}

// Query resolves the query with debug logging around the wrapped backend.
func (d *Debug) Query(ctx context.Context, params caselist.Params) (*caselist.ResultPage, error) {
	d.logger.Debug("backend query", "key", params.Key())

	start := time.Now()
	page, err := d.backend.Query(ctx, params)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, caselist.ErrNoContent):
		d.logger.Debug("backend query empty", "key", params.Key(), "elapsed", elapsed)
	case err != nil:
		d.logger.Debug("backend query error", "key", params.Key(), "elapsed", elapsed, "error", err)
	default:
		d.logger.Debug("backend query ok",
			"key", params.Key(),
			"elapsed", elapsed,
			"rows", len(page.Rows),
			"total", page.Pagination.Total,
			"serverCacheHit", page.Performance.CacheHit)
	}

	return page, err
}
