// Package backends contains Backend implementations for the case list API.
package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/casewire/caselist"
)

// listResponse is the wire shape of a successful case list response.
type listResponse struct {
	Rows       []caselist.CaseSummary `json:"rows"`
	Pagination struct {
		Total    int `json:"total"`
		Page     int `json:"page"`
		PageSize int `json:"pageSize"`
	} `json:"pagination"`
	Performance struct {
		QueryTimeMS  float64 `json:"queryTimeMs"`
		CacheHit     bool    `json:"cacheHit"`
		ResponseSize int64   `json:"responseSizeBytes"`
	} `json:"performance"`
}

// errorResponse is the wire shape of an API error body.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HTTPConfig configures an HTTP backend.
type HTTPConfig struct {
	// BaseURL is the API root, e.g. "https://api.example.org/v1".
	BaseURL string

	// Session authenticates requests as the signed-in user.
	Session caselist.Session

	// RequestTimeout bounds a single request when positive. Zero means no
	// timeout; supersession remains the primary cancellation path.
	RequestTimeout time.Duration

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// HTTP queries the case list API over HTTP with JSON bodies.
type HTTP struct {
	baseURL string
	session caselist.Session
	timeout time.Duration
	client  *http.Client
}

// NewHTTP creates an HTTP backend.
func NewHTTP(cfg HTTPConfig) *HTTP {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{
		baseURL: cfg.BaseURL,
		session: cfg.Session,
		timeout: cfg.RequestTimeout,
		client:  client,
	}
}

// Query implements caselist.Backend.
func (h *HTTP) Query(ctx context.Context, params caselist.Params) (*caselist.ResultPage, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/cases", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build case list request: %w", err)
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(params.Page))
	q.Set("pageSize", strconv.Itoa(params.PageSize))
	if params.Search != "" {
		q.Set("search", params.Search)
	}
	if params.Category != "" {
		q.Set("category", params.Category)
	}
	if params.Status != "" {
		q.Set("status", params.Status)
	}
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Accept", "application/json")
	if h.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.session.Token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("case list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, caselist.ErrNoContent
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read case list response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("case list API error (status %d): %s: %s",
				resp.StatusCode, apiErr.Error, apiErr.Message)
		}
		return nil, fmt.Errorf("case list API returned status %d", resp.StatusCode)
	}

	var wire listResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to unmarshal case list response: %w", err)
	}

	responseSize := wire.Performance.ResponseSize
	if responseSize == 0 {
		responseSize = int64(len(body))
	}

	return &caselist.ResultPage{
		Rows: wire.Rows,
		Pagination: caselist.Pagination{
			Total:    wire.Pagination.Total,
			Page:     wire.Pagination.Page,
			PageSize: wire.Pagination.PageSize,
		},
		Performance: caselist.Performance{
			QueryTime:    time.Duration(wire.Performance.QueryTimeMS * float64(time.Millisecond)),
			CacheHit:     wire.Performance.CacheHit,
			ResponseSize: responseSize,
		},
	}, nil
}
