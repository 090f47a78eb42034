package domain

import (
	"cmp"
	"maps"
	"slices"
	"time"
)

// Shelf is a user-owned, ordered collection of items.
// Items may reference other shelves by ID, so the content graph is a DAG of shelves
// rather than a tree; a shelf never embeds another shelf.
//
// Positions and Items must always carry the same key set. Position values form a
// strict total order but need not be contiguous.
type Shelf struct {
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	ID          string        `json:"id" validate:"required,max=64"`
	OwnerID     string        `json:"owner_id" validate:"required,max=64,excludes=:"`
	Title       string        `json:"title" validate:"required,max=200"`
	Description string        `json:"description,omitempty" validate:"max=2000"`
	Tags        []string      `json:"tags,omitempty" validate:"max=16"`
	Positions   map[int]int64 `json:"positions"` // item key -> position
	Items       map[int]Item  `json:"items"`     // item key -> payload
	// Unconfirmed marks a shelf created locally that the backend has not echoed yet.
	Unconfirmed bool `json:"unconfirmed,omitempty"`
}

// NewShelf returns an empty shelf with initialized maps and timestamps.
func NewShelf(id, ownerID, title string) *Shelf {
	now := time.Now()
	return &Shelf{
		ID:        id,
		OwnerID:   ownerID,
		Title:     title,
		Positions: make(map[int]int64),
		Items:     make(map[int]Item),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can never mutate cached state.
func (s *Shelf) Clone() *Shelf {
	if s == nil {
		return nil
	}
	c := *s
	c.Tags = slices.Clone(s.Tags)
	c.Positions = maps.Clone(s.Positions)
	c.Items = make(map[int]Item, len(s.Items))
	for k, it := range s.Items {
		c.Items[k] = it.Clone()
	}
	if c.Positions == nil {
		c.Positions = make(map[int]int64)
	}
	return &c
}

// Touch updates the UpdatedAt timestamp.
func (s *Shelf) Touch() {
	s.UpdatedAt = time.Now()
}

// Order returns the item keys sorted by position, ties broken by key.
func (s *Shelf) Order() []int {
	keys := slices.Collect(maps.Keys(s.Positions))
	slices.SortFunc(keys, func(a, b int) int {
		if c := cmp.Compare(s.Positions[a], s.Positions[b]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return keys
}

// Append adds an item after the current last position.
// Returns false if the key is already present.
func (s *Shelf) Append(item Item) bool {
	if _, ok := s.Items[item.Key]; ok {
		return false
	}
	s.ensureMaps()
	s.Items[item.Key] = item
	s.Positions[item.Key] = s.nextPosition()
	s.UpdatedAt = time.Now()
	return true
}

// Remove deletes an item and its position. Returns false if the key was absent.
func (s *Shelf) Remove(key int) bool {
	if _, ok := s.Items[key]; !ok {
		return false
	}
	delete(s.Items, key)
	delete(s.Positions, key)
	s.UpdatedAt = time.Now()
	return true
}

// SetOrder rewrites positions to follow order exactly (0..n-1).
// Keys in order that have no item are skipped; items missing from order
// keep their relative order after the listed ones.
func (s *Shelf) SetOrder(order []int) {
	s.ensureMaps()
	rest := s.Order()
	next := make(map[int]int64, len(s.Items))
	var pos int64
	for _, k := range order {
		if _, ok := s.Items[k]; !ok {
			continue
		}
		if _, dup := next[k]; dup {
			continue
		}
		next[k] = pos
		pos++
	}
	for _, k := range rest {
		if _, ok := next[k]; ok {
			continue
		}
		next[k] = pos
		pos++
	}
	s.Positions = next
}

// Normalize repairs the position/item invariant: positions without an item are
// dropped and items without a position are appended in key order. Duplicate
// position values are re-spread so the order stays strict.
func (s *Shelf) Normalize() {
	s.ensureMaps()
	for k := range s.Positions {
		if _, ok := s.Items[k]; !ok {
			delete(s.Positions, k)
		}
	}
	var orphans []int
	for k := range s.Items {
		if _, ok := s.Positions[k]; !ok {
			orphans = append(orphans, k)
		}
	}
	slices.Sort(orphans)
	for _, k := range orphans {
		s.Positions[k] = s.nextPosition()
	}
	if s.hasTies() {
		s.SetOrder(s.Order())
	}
}

// ItemKeys returns the sorted item keys.
func (s *Shelf) ItemKeys() []int {
	return slices.Sorted(maps.Keys(s.Items))
}

// ShelfRefs returns the distinct shelf IDs referenced by this shelf's items in display order.
func (s *Shelf) ShelfRefs() []string {
	var refs []string
	seen := make(map[string]bool)
	for _, k := range s.Order() {
		it, ok := s.Items[k]
		if !ok || it.Content.Kind != ContentShelfRef {
			continue
		}
		if seen[it.Content.ShelfRef] {
			continue
		}
		seen[it.Content.ShelfRef] = true
		refs = append(refs, it.Content.ShelfRef)
	}
	return refs
}

func (s *Shelf) ensureMaps() {
	if s.Positions == nil {
		s.Positions = make(map[int]int64)
	}
	if s.Items == nil {
		s.Items = make(map[int]Item)
	}
}

func (s *Shelf) nextPosition() int64 {
	var maxPos int64 = -1
	for _, p := range s.Positions {
		maxPos = max(maxPos, p)
	}
	return maxPos + 1
}

func (s *Shelf) hasTies() bool {
	seen := make(map[int64]bool, len(s.Positions))
	for _, p := range s.Positions {
		if seen[p] {
			return true
		}
		seen[p] = true
	}
	return false
}
