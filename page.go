package caselist

import "time"

// CaseSummary is one row of the case list as rendered by the admin screen.
type CaseSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	Status     string    `json:"status"`
	AssigneeID string    `json:"assigneeId,omitempty"`
	OpenedAt   time.Time `json:"openedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Pagination describes where a page sits in the full result set.
type Pagination struct {
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// Performance is the telemetry the API reports alongside each page. For
// pages served from the in-memory cache, CacheHit is true and QueryTime is
// the original server-side time of the cached response.
type Performance struct {
	QueryTime    time.Duration `json:"queryTime"`
	CacheHit     bool          `json:"cacheHit"`
	ResponseSize int64         `json:"responseSize"`
}

// ResultPage is one page of case list results.
type ResultPage struct {
	Rows        []CaseSummary `json:"rows"`
	Pagination  Pagination    `json:"pagination"`
	Performance Performance   `json:"performance"`
}

// Clone returns a deep copy. Cached pages are handed out and taken in only
// as clones so that append paths never mutate a stored page.
func (p *ResultPage) Clone() *ResultPage {
	if p == nil {
		return nil
	}
	out := *p
	out.Rows = make([]CaseSummary, len(p.Rows))
	copy(out.Rows, p.Rows)
	return &out
}
