package shared

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CursorPage carries decoded cursor pagination parameters. Listings are
// ordered by id descending; AfterID is the id watermark of the last row the
// client has seen (0 means start from the newest row).
type CursorPage struct {
	Limit   int
	AfterID int64
}

// ParseCursor reads cursor/limit query parameters.
func ParseCursor(r *http.Request) (CursorPage, error) {
	page := CursorPage{Limit: defaultPageSize}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return CursorPage{}, fmt.Errorf("%w: invalid limit %q", ErrValidation, raw)
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}
		page.Limit = limit
	}

	if raw := r.URL.Query().Get("cursor"); raw != "" {
		id, err := DecodeCursor(raw)
		if err != nil {
			return CursorPage{}, fmt.Errorf("%w: invalid cursor", ErrValidation)
		}
		page.AfterID = id
	}

	return page, nil
}

// EncodeCursor produces the opaque cursor for the given id watermark.
func EncodeCursor(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(cursor string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("malformed cursor payload")
	}
	return id, nil
}

// CursorResult wraps a page of rows with the cursor for the next page.
type CursorResult[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"next_cursor,omitempty"`
}

// NewCursorResult builds a page result; lastID is the id of the final row.
// A next cursor is only emitted when the page was full.
func NewCursorResult[T any](items []T, limit int, lastID int64) CursorResult[T] {
	res := CursorResult[T]{Items: items}
	if len(items) == limit && lastID > 0 {
		cursor := EncodeCursor(lastID)
		res.NextCursor = &cursor
	}
	return res
}
