package caselist

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Params identifies one page of case list results. The zero value is not
// valid; use DefaultParams for the initial unfiltered view.
type Params struct {
	Page     int `validate:"required,min=1"`
	PageSize int `validate:"required,oneof=10 20 50 100"`
	Search   string
	Category string
	Status   string
}

// DefaultParams is the initial query: first page, default size, no filters.
func DefaultParams() Params {
	return Params{Page: 1, PageSize: 20}
}

// Validate checks the params against the allowed ranges using
// go-playground/validator.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid query params: %w", err)
	}
	return nil
}

// Key returns the canonical cache key for these params. The field order is
// fixed, so identical component values always serialize identically.
func (p Params) Key() string {
	return fmt.Sprintf("p=%d&ps=%d&q=%s&cat=%s&st=%s",
		p.Page, p.PageSize, p.Search, p.Category, p.Status)
}
