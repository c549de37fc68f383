// Package pagination parses limit/offset query parameters and shapes paged
// list responses.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset query parameters. Missing or invalid
// values fall back to defaults; limit is capped at MaxLimit.
func FromContext(c echo.Context) Params {
	return New(atoi(c.QueryParam("limit")), atoi(c.QueryParam("offset")))
}

// New clamps limit to [1, MaxLimit] (zero or negative means DefaultLimit) and
// offset to be non-negative.
func New(limit, offset int) Params {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Next returns the params for the page after p and whether such a page
// exists for total items.
func (p Params) Next(total int) (Params, bool) {
	if p.Offset+p.Limit >= total {
		return p, false
	}
	return Params{Limit: p.Limit, Offset: p.Offset + p.Limit}, true
}

// Page is a paginated API response.
type Page[T any] struct {
	Data       []T  `json:"data"`
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset,omitempty"`
}

// NewPage wraps items. A nil slice is rendered as an empty list.
func NewPage[T any](items []T, total int, p Params) *Page[T] {
	if items == nil {
		items = []T{}
	}
	page := &Page[T]{Data: items, Total: total, Limit: p.Limit, Offset: p.Offset}
	if next, ok := p.Next(total); ok {
		page.HasMore = true
		page.NextOffset = &next.Offset
	}
	return page
}
