package shared

import (
	"net/url"
	"strconv"
)

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

// Pagination is a page window parsed from list query strings.
type Pagination struct {
	Page    int
	PerPage int
}

// ParsePagination reads page and per_page, clamping to sane bounds.
func ParsePagination(q url.Values) Pagination {
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return Pagination{Page: page, PerPage: perPage}
}

// Limit returns the row cap for the window.
func (p Pagination) Limit() int { return p.PerPage }

// Offset returns the number of rows to skip.
func (p Pagination) Offset() int { return (p.Page - 1) * p.PerPage }
