// Package search provides tag prefix search using Bleve.
// Tags are indexed by slug and by each hyphen-separated word so that a query
// like "fi" finds both "fiction" and "sci-fi".
package search

import (
	"github.com/listenupapp/shelfcache/internal/domain"
	"github.com/listenupapp/shelfcache/internal/normalize"
)

// TagDocument is the indexed form of a tag. The document ID is the slug.
type TagDocument struct {
	Slug       string   `json:"slug"`
	Words      []string `json:"words"`
	ShelfCount int      `json:"shelf_count"`
}

// NewTagDocument builds the indexed form of t.
func NewTagDocument(t *domain.Tag) *TagDocument {
	return &TagDocument{
		Slug:       t.Slug,
		Words:      normalize.TagWords(t.Slug),
		ShelfCount: t.ShelfCount,
	}
}

// ToMap converts the document to the field names used by the mapping.
func (d *TagDocument) ToMap() map[string]any {
	return map[string]any{
		"slug":        d.Slug,
		"words":       d.Words,
		"shelf_count": float64(d.ShelfCount),
	}
}
