package note

import (
	"time"

	"notes-server/internal/tag"
)

type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Pinned    bool      `json:"pinned"`
	Archived  bool      `json:"archived"`
	Trashed   bool      `json:"trashed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Tags      []tag.Tag `json:"tags"`
}

// Patch carries a partial update; nil fields stay untouched.
type Patch struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	Pinned   *bool   `json:"pinned"`
	Archived *bool   `json:"archived"`
	Trashed  *bool   `json:"trashed"`
}

// ListFilter selects which notes to page through. Exactly one of the
// boolean/tag/query branches applies, in that priority order, matching the
// behavior front-end filters expect.
type ListFilter struct {
	Archived *bool
	Trashed  *bool
	Pinned   *bool
	TagIDs   []string
	Query    string
	Page     int
	Size     int
}

type Page struct {
	Items      []Note `json:"items"`
	Page       int    `json:"page"`
	Size       int    `json:"size"`
	TotalItems int64  `json:"total_items"`
	TotalPages int    `json:"total_pages"`
}
