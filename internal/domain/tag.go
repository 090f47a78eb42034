package domain

import "time"

// Tag is a community-wide label applied to shelves.
// Slug is the identity; ShelfCount is the popularity metric used for ranking.
type Tag struct {
	Slug       string    `json:"slug"`
	ShelfCount int       `json:"shelf_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Touch updates the UpdatedAt timestamp.
func (t *Tag) Touch() {
	t.UpdatedAt = time.Now()
}
