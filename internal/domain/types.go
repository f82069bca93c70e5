// Package domain holds the POS entities shared by repositories, services and handlers.
package domain

import "time"

// Pagination defines cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OffsetPage is a numbered page over an in-memory result set.
type OffsetPage[T any] struct {
	Items    []T
	Page     int
	PageSize int
	Total    int
}

// TimeRange is an inclusive creation-time window. Zero bounds are open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t lies in the window, both ends inclusive.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// IsZero reports an unbounded window.
func (r TimeRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}
