package cache

import (
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Evictor bounds the number of cached shelves by least-recent access.
//
// It is wired to a Store through the store's access hook; the Store itself never
// evicts. Shelves with a pending reorder refuse eviction and drop out of the
// recency list until they are accessed again.
type Evictor struct {
	store  *Store
	recent *lru.Cache[string, struct{}]
	logger *slog.Logger
}

// NewEvictor attaches an LRU eviction policy with the given capacity to store.
func NewEvictor(store *Store, capacity int, logger *slog.Logger) (*Evictor, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Evictor{store: store, logger: logger}

	recent, err := lru.NewWithEvict(capacity, e.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create eviction list: %w", err)
	}
	e.recent = recent
	store.SetAccessHook(e.Touch)
	return e, nil
}

// Touch marks a shelf as recently used.
func (e *Evictor) Touch(shelfID string) {
	if !e.store.HasShelf(shelfID) {
		e.recent.Remove(shelfID)
		return
	}
	e.recent.Add(shelfID, struct{}{})
}

// Len returns the number of tracked shelves.
func (e *Evictor) Len() int {
	return e.recent.Len()
}

// Detach stops tracking accesses. Cached shelves are left in place.
func (e *Evictor) Detach() {
	e.store.SetAccessHook(nil)
}

func (e *Evictor) onEvict(shelfID string, _ struct{}) {
	if e.store.Evict(shelfID) {
		e.logger.Debug("evicted least recently used shelf", "shelf_id", shelfID)
		return
	}
	if e.store.HasShelf(shelfID) {
		e.logger.Debug("eviction skipped, reorder pending", "shelf_id", shelfID)
	}
}
