package service

import "github.com/agentforge/engine/common/apperr"

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Page is a cursor-paginated slice of results. NextCursor is the id of
// the last returned element, empty when the page reaches the end.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	Total      int    `json:"total"`
}

// paginate applies cursor+limit over a list already sorted newest-first.
// The cursor is the id of the last element of the previous page.
func paginate[T any](items []T, id func(T) string, cursor string, limit int) (Page[T], error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	start := 0
	if cursor != "" {
		found := false
		for i, item := range items {
			if id(item) == cursor {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			return Page[T]{}, apperr.New(apperr.CodeInvalidCursor, 400, "unknown cursor: %s", cursor)
		}
	}

	end := start + limit
	if end > len(items) {
		end = len(items)
	}

	page := Page[T]{
		Items: items[start:end],
		Total: len(items),
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	if end < len(items) && end > start {
		page.NextCursor = id(items[end-1])
	}
	return page, nil
}
