package domain

import (
	"errors"
	"fmt"
	"time"
)

// ContentKind discriminates the Item content variant.
type ContentKind string

// Content kinds. The set is closed; switch statements over ContentKind are exhaustive.
const (
	ContentText     ContentKind = "text"
	ContentMedia    ContentKind = "media"
	ContentShelfRef ContentKind = "shelf_ref"
)

// Media is an embedded media reference.
type Media struct {
	URL     string `json:"url" validate:"required,url"`
	Kind    string `json:"kind,omitempty"` // image, video, audio, embed
	Caption string `json:"caption,omitempty"`
}

// Content is the payload of an Item. Exactly one of Text, Media or ShelfRef
// is meaningful, selected by Kind.
type Content struct {
	Kind     ContentKind `json:"kind"`
	Text     string      `json:"text,omitempty"`
	Media    *Media      `json:"media,omitempty"`
	ShelfRef string      `json:"shelf_ref,omitempty"`
}

// TextContent builds a free-form text payload.
func TextContent(text string) Content {
	return Content{Kind: ContentText, Text: text}
}

// MediaContent builds an embedded media payload.
func MediaContent(m Media) Content {
	return Content{Kind: ContentMedia, Media: &m}
}

// ShelfRefContent builds a reference to another shelf.
func ShelfRefContent(shelfID string) Content {
	return Content{Kind: ContentShelfRef, ShelfRef: shelfID}
}

// ErrInvalidContent is returned by Content.Validate.
var ErrInvalidContent = errors.New("invalid item content")

// Validate checks that the payload required by Kind is present.
func (c Content) Validate() error {
	switch c.Kind {
	case ContentText:
		return nil
	case ContentMedia:
		if c.Media == nil || c.Media.URL == "" {
			return fmt.Errorf("%w: media content requires a url", ErrInvalidContent)
		}
		return nil
	case ContentShelfRef:
		if c.ShelfRef == "" {
			return fmt.Errorf("%w: shelf reference requires a shelf id", ErrInvalidContent)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidContent, c.Kind)
	}
}

// IsShelfRef reports whether the content points at another shelf.
func (c Content) IsShelfRef() bool {
	return c.Kind == ContentShelfRef && c.ShelfRef != ""
}

// Item is a single entry in a shelf. Key is unique within the owning shelf.
type Item struct {
	AddedAt time.Time `json:"added_at,omitzero"`
	Key     int       `json:"key"`
	Content Content   `json:"content"`
}

// Clone returns a copy that does not share the media pointer.
func (it Item) Clone() Item {
	if it.Content.Media != nil {
		m := *it.Content.Media
		it.Content.Media = &m
	}
	return it
}

// OrderedItem pairs an item key with its payload in display order.
type OrderedItem struct {
	Key  int  `json:"key"`
	Item Item `json:"item"`
}
