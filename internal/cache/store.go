// Package cache implements the normalized in-memory store of shelves, items and tags.
//
// The Store is the single canonical copy of every entity the client has seen. Other
// components hold a handle to it and read through its accessors; only the Store's own
// mutation methods change state. No network calls originate here.
package cache

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/listenupapp/shelfcache/internal/domain"
	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
)

// Store holds shelves, tags and pending reorders keyed by ID.
//
// Thread safety: all public methods are safe for concurrent use. Returned shelves are
// deep copies; mutating them never affects cached state.
type Store struct {
	shelves map[string]*domain.Shelf
	tags    map[string]*domain.Tag
	// pending holds the optimistic order per shelf while a reorder is uncommitted.
	pending map[string][]int
	// unconfirmed tracks locally added item keys the backend has not echoed yet.
	unconfirmed map[string]map[int]bool
	logger      *slog.Logger
	accessHook  func(shelfID string)
	version     uint64
	mu          sync.RWMutex
}

// New creates an empty store. A nil logger discards log output.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		shelves:     make(map[string]*domain.Shelf),
		tags:        make(map[string]*domain.Tag),
		pending:     make(map[string][]int),
		unconfirmed: make(map[string]map[int]bool),
		logger:      logger,
	}
}

// SetAccessHook registers a callback invoked (outside the store lock) whenever a shelf
// is read or written. Used by the eviction policy.
func (s *Store) SetAccessHook(fn func(shelfID string)) {
	s.mu.Lock()
	s.accessHook = fn
	s.mu.Unlock()
}

// Version increments on every mutation. Memoized projections key on it.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// UpsertShelf merges a shelf snapshot into the store.
//
// Scalars are overwritten by the incoming value. Item payloads are merged key-wise and
// membership follows the snapshot, except items added locally that are still awaiting
// confirmation. Positions are replaced only when no pending reorder exists for the
// shelf; otherwise the current relative order is kept and arriving items go last.
// Applying the same snapshot twice leaves the store unchanged.
func (s *Store) UpsertShelf(shelf *domain.Shelf) {
	if shelf == nil || shelf.ID == "" {
		return
	}
	incoming := shelf.Clone()
	incoming.Normalize()

	s.mu.Lock()
	existing, ok := s.shelves[incoming.ID]
	if !ok {
		s.shelves[incoming.ID] = incoming
		s.version++
		s.mu.Unlock()
		s.logger.Debug("shelf cached", "shelf_id", incoming.ID, "items", len(incoming.Items))
		s.touch(incoming.ID)
		return
	}

	_, hasPending := s.pending[incoming.ID]
	local := s.unconfirmed[incoming.ID]

	existing.OwnerID = incoming.OwnerID
	existing.Title = incoming.Title
	existing.Description = incoming.Description
	existing.Tags = incoming.Tags
	existing.CreatedAt = incoming.CreatedAt
	existing.UpdatedAt = incoming.UpdatedAt
	existing.Unconfirmed = incoming.Unconfirmed

	for k, it := range incoming.Items {
		existing.Items[k] = it
		delete(local, k)
	}
	for k := range existing.Items {
		if _, keep := incoming.Items[k]; keep || local[k] {
			continue
		}
		delete(existing.Items, k)
		delete(existing.Positions, k)
	}

	if !hasPending {
		localPositions := make(map[int]int64, len(local))
		for k := range local {
			localPositions[k] = existing.Positions[k]
		}
		existing.Positions = maps.Clone(incoming.Positions)
		// Local items keep trailing the confirmed ones in their previous relative order.
		for _, k := range sortedByPosition(localPositions) {
			delete(existing.Positions, k)
		}
		for _, k := range sortedByPosition(localPositions) {
			existing.Positions[k] = nextPosition(existing.Positions)
		}
	}
	existing.Normalize()
	if len(local) == 0 {
		delete(s.unconfirmed, incoming.ID)
	}
	s.version++
	s.mu.Unlock()

	s.logger.Debug("shelf merged",
		"shelf_id", incoming.ID,
		"items", len(incoming.Items),
		"positions_kept", hasPending,
	)
	s.touch(incoming.ID)
}

// UpsertItems merges items into an existing shelf. New keys are appended after the
// current last position and stay unconfirmed until a snapshot includes them.
func (s *Store) UpsertItems(shelfID string, items []domain.Item) error {
	s.mu.Lock()
	shelf, ok := s.shelves[shelfID]
	if !ok {
		s.mu.Unlock()
		return domainerrors.NotFoundf("shelf %s is not cached", shelfID)
	}
	for _, it := range items {
		it = it.Clone()
		if _, exists := shelf.Items[it.Key]; exists {
			shelf.Items[it.Key] = it
			continue
		}
		shelf.Append(it)
		if s.unconfirmed[shelfID] == nil {
			s.unconfirmed[shelfID] = make(map[int]bool)
		}
		s.unconfirmed[shelfID][it.Key] = true
	}
	s.version++
	s.mu.Unlock()

	s.touch(shelfID)
	return nil
}

// RemoveItems deletes items from a cached shelf. Unknown keys are ignored.
func (s *Store) RemoveItems(shelfID string, keys []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shelf, ok := s.shelves[shelfID]
	if !ok {
		return domainerrors.NotFoundf("shelf %s is not cached", shelfID)
	}
	for _, k := range keys {
		shelf.Remove(k)
		delete(s.unconfirmed[shelfID], k)
	}
	s.version++
	return nil
}

// GetShelf returns a copy of the cached shelf.
func (s *Store) GetShelf(id string) (*domain.Shelf, bool) {
	s.mu.RLock()
	shelf, ok := s.shelves[id]
	var out *domain.Shelf
	if ok {
		out = shelf.Clone()
	}
	s.mu.RUnlock()

	if ok {
		s.touch(id)
	}
	return out, ok
}

// HasShelf reports whether a shelf is cached without counting as an access.
func (s *Store) HasShelf(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.shelves[id]
	return ok
}

// GetItemsInOrder returns the shelf's items in current display order.
//
// A pending reorder takes precedence over committed positions. Pending keys whose item
// has since disappeared are dropped silently; items that arrived after the reorder
// started follow in committed order.
func (s *Store) GetItemsInOrder(shelfID string) ([]domain.OrderedItem, bool) {
	s.mu.RLock()
	shelf, ok := s.shelves[shelfID]
	if !ok {
		s.mu.RUnlock()
		return nil, false
	}
	order := shelf.Order()
	if pending, has := s.pending[shelfID]; has {
		order = overlay(pending, order)
	}
	out := make([]domain.OrderedItem, 0, len(order))
	for _, k := range order {
		it, exists := shelf.Items[k]
		if !exists {
			continue
		}
		out = append(out, domain.OrderedItem{Key: k, Item: it.Clone()})
	}
	s.mu.RUnlock()

	s.touch(shelfID)
	return out, true
}

// CommittedOrder returns the item keys in committed (backend-confirmed) order.
func (s *Store) CommittedOrder(shelfID string) ([]int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	shelf, ok := s.shelves[shelfID]
	if !ok {
		return nil, false
	}
	return shelf.Order(), true
}

// CommitOrder replaces the committed positions with order.
func (s *Store) CommitOrder(shelfID string, order []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shelf, ok := s.shelves[shelfID]
	if !ok {
		return domainerrors.NotFoundf("shelf %s is not cached", shelfID)
	}
	shelf.SetOrder(order)
	s.version++
	return nil
}

// SetPendingOrder records the optimistic order for a shelf.
func (s *Store) SetPendingOrder(shelfID string, order []int) {
	s.mu.Lock()
	s.pending[shelfID] = slices.Clone(order)
	s.version++
	s.mu.Unlock()
}

// PendingOrder returns the pending order, if any.
func (s *Store) PendingOrder(shelfID string) ([]int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.pending[shelfID]
	return slices.Clone(order), ok
}

// ClearPendingOrder discards the pending order for a shelf.
func (s *Store) ClearPendingOrder(shelfID string) {
	s.mu.Lock()
	if _, ok := s.pending[shelfID]; ok {
		delete(s.pending, shelfID)
		s.version++
	}
	s.mu.Unlock()
}

// Evict drops a shelf from the cache. Shelves with a pending reorder are never evicted.
func (s *Store) Evict(shelfID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[shelfID]; ok {
		return false
	}
	if _, ok := s.shelves[shelfID]; !ok {
		return false
	}
	delete(s.shelves, shelfID)
	delete(s.unconfirmed, shelfID)
	s.version++
	s.logger.Debug("shelf evicted", "shelf_id", shelfID)
	return true
}

// UpsertTag stores or replaces a tag.
func (s *Store) UpsertTag(tag *domain.Tag) {
	if tag == nil || tag.Slug == "" {
		return
	}
	t := *tag
	s.mu.Lock()
	s.tags[t.Slug] = &t
	s.version++
	s.mu.Unlock()
}

// GetTag returns a copy of a cached tag.
func (s *Store) GetTag(slug string) (*domain.Tag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tags[slug]
	if !ok {
		return nil, false
	}
	out := *t
	return &out, true
}

// ShelfCount returns the number of cached shelves.
func (s *Store) ShelfCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.shelves)
}

func (s *Store) touch(shelfID string) {
	s.mu.RLock()
	hook := s.accessHook
	s.mu.RUnlock()
	if hook != nil {
		hook(shelfID)
	}
}

// overlay returns pending followed by any key of committed not in pending.
func overlay(pending, committed []int) []int {
	out := slices.Clone(pending)
	in := make(map[int]bool, len(pending))
	for _, k := range pending {
		in[k] = true
	}
	for _, k := range committed {
		if !in[k] {
			out = append(out, k)
		}
	}
	return out
}

func sortedByPosition(positions map[int]int64) []int {
	keys := slices.Collect(maps.Keys(positions))
	slices.SortFunc(keys, func(a, b int) int {
		if positions[a] != positions[b] {
			if positions[a] < positions[b] {
				return -1
			}
			return 1
		}
		return a - b
	})
	return keys
}

func nextPosition(positions map[int]int64) int64 {
	var maxPos int64 = -1
	for _, p := range positions {
		maxPos = max(maxPos, p)
	}
	return maxPos + 1
}
