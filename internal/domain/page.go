package domain

import (
	"encoding/base64"
	"encoding/json/v2"
	"fmt"
)

// QueryKind selects which paginated backend query a result stream comes from.
type QueryKind string

// Query kinds served by the page boundary.
const (
	KindPopularTags  QueryKind = "popular_tags"   // tags ranked by shelf count
	KindTagSearch    QueryKind = "tag_search"     // tags by slug prefix
	KindShelvesByTag QueryKind = "shelves_by_tag" // shelves carrying a tag
	KindFeed         QueryKind = "feed"           // named feed (recency, random, storyline)
	KindOwnedShelves QueryKind = "owned_shelves"  // shelves owned by a user
)

// Valid reports whether k is a known query kind.
func (k QueryKind) Valid() bool {
	switch k {
	case KindPopularTags, KindTagSearch, KindShelvesByTag, KindFeed, KindOwnedShelves:
		return true
	default:
		return false
	}
}

// ReturnsTags reports whether pages of this kind carry tags rather than shelves.
func (k QueryKind) ReturnsTags() bool {
	return k == KindPopularTags || k == KindTagSearch
}

// Feed names.
const (
	FeedRecency   = "recency"
	FeedRandom    = "random"
	FeedStoryline = "storyline"
)

// QueryKey identifies one accumulated result stream, e.g. {shelves_by_tag, "sci-fi"}.
type QueryKey struct {
	Kind QueryKind `json:"kind"`
	Key  string    `json:"key"`
}

// String renders the key as "kind:key".
func (q QueryKey) String() string {
	return string(q.Kind) + ":" + q.Key
}

// Entry is one result of a page. ID is a shelf ID or a tag slug depending on the kind;
// the matching entity is attached when the backend returned it.
type Entry struct {
	ID    string `json:"id"`
	Shelf *Shelf `json:"shelf,omitempty"`
	Tag   *Tag   `json:"tag,omitempty"`
}

// Page is one backend response for a paginated query.
type Page struct {
	Entries    []Entry `json:"entries"`
	NextCursor string  `json:"next_cursor,omitempty"`
	Exhausted  bool    `json:"exhausted"`
}

// IDs returns the entry IDs in server order.
func (p *Page) IDs() []string {
	ids := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		ids[i] = e.ID
	}
	return ids
}

// PopularityCursor resumes a popularity-ranked tag listing after (Count, Slug).
type PopularityCursor struct {
	Count int    `json:"count"`
	Slug  string `json:"slug"`
}

// TagShelfCursor resumes a tag->shelf association listing after ShelfID.
type TagShelfCursor struct {
	Slug    string `json:"slug"`
	ShelfID string `json:"shelf_id"`
}

// TagPrefixCursor resumes a prefix search after Slug.
type TagPrefixCursor struct {
	Slug string `json:"slug"`
}

// OwnerShelfCursor resumes an owner's shelf listing after ShelfID.
type OwnerShelfCursor struct {
	OwnerID string `json:"owner_id"`
	ShelfID string `json:"shelf_id"`
}

// FeedCursor resumes a feed after the given ordering key.
type FeedCursor struct {
	Feed string `json:"feed"`
	Key  string `json:"key"`
}

// EncodeCursor turns any cursor shape into an opaque token. A nil cursor encodes to "".
func EncodeCursor(c any) (string, error) {
	if c == nil {
		return "", nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCursor decodes an opaque token into dest. It reports false for the empty token.
func DecodeCursor(token string, dest any) (bool, error) {
	if token == "" {
		return false, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return false, fmt.Errorf("invalid cursor: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("invalid cursor: %w", err)
	}
	return true, nil
}
