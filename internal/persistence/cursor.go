// Package persistence contains helpers shared by the store implementations
// and their callers.
package persistence

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"example.com/studytrack/internal/domain"
)

// Cursor marks the last activity of a page in store order
// (date desc, then createdAt desc, then id desc).
type Cursor struct {
	Date      domain.Date
	CreatedAt time.Time
	ID        string
}

// CursorAt returns the cursor positioned on a.
func CursorAt(a domain.Activity) *Cursor {
	return &Cursor{Date: a.Date, CreatedAt: a.CreatedAt, ID: a.ID}
}

// EncodeCursor serialises the cursor to an opaque token.
func EncodeCursor(c *Cursor) string {
	if c == nil {
		return ""
	}
	raw := fmt.Sprintf("%s|%s|%s", c.Date, c.CreatedAt.UTC().Format(time.RFC3339Nano), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token yields nil.
func DecodeCursor(token string) (*Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(string(decoded), "|", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid cursor format")
	}
	date, err := domain.ParseDate(parts[0])
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, err
	}
	return &Cursor{Date: date, CreatedAt: ts, ID: parts[2]}, nil
}

// PageActivities returns up to limit activities following cursor in list,
// which must already be in store order, plus the cursor of the next page
// (nil on the last page). A limit <= 0 returns the remainder.
func PageActivities(list []domain.Activity, cursor *Cursor, limit int) ([]domain.Activity, *Cursor) {
	start := 0
	if cursor != nil {
		start = len(list)
		for i, a := range list {
			if a.ID == cursor.ID {
				start = i + 1
				break
			}
			if after(a, cursor) {
				start = i
				break
			}
		}
	}

	rest := list[start:]
	if limit <= 0 || limit >= len(rest) {
		return append([]domain.Activity{}, rest...), nil
	}
	page := append([]domain.Activity{}, rest[:limit]...)
	return page, CursorAt(page[len(page)-1])
}

// after reports whether a sorts strictly after the cursor position. It locates
// the resume point when the cursor's own activity has been deleted.
func after(a domain.Activity, c *Cursor) bool {
	if a.Date != c.Date {
		return a.Date < c.Date
	}
	if !a.CreatedAt.Equal(c.CreatedAt) {
		return a.CreatedAt.Before(c.CreatedAt)
	}
	return a.ID < c.ID
}
