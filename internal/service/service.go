// Package service composes the cache components into the operations the API serves.
package service

import (
	"log/slog"

	"github.com/listenupapp/shelfcache/internal/cache"
	"github.com/listenupapp/shelfcache/internal/domain"
	"github.com/listenupapp/shelfcache/internal/feed"
	"github.com/listenupapp/shelfcache/internal/pagination"
	"github.com/listenupapp/shelfcache/internal/remote"
	"github.com/listenupapp/shelfcache/internal/reorder"
	"github.com/listenupapp/shelfcache/internal/resolver"
	"github.com/listenupapp/shelfcache/internal/sse"
)

// Emitter receives events for connected clients. *sse.Manager implements it.
type Emitter interface {
	Emit(event any)
}

// ShelfService is the read and edit surface over the shelf cache.
//
// Reads are served from the normalized Store; anything missing is fetched
// through the backend once and merged. Component callbacks are relayed to
// the emitter as SSE events.
type ShelfService struct {
	backend      remote.Backend
	store        *cache.Store
	resolver     *resolver.Resolver
	reorder      *reorder.Engine
	pages        *pagination.Manager
	feeds        *feed.Aggregator
	emitter      Emitter
	logger       *slog.Logger
	resolveDepth int
}

// NewShelfService creates a shelf service and subscribes to component changes.
func NewShelfService(
	backend remote.Backend,
	store *cache.Store,
	res *resolver.Resolver,
	engine *reorder.Engine,
	pages *pagination.Manager,
	feeds *feed.Aggregator,
	emitter Emitter,
	logger *slog.Logger,
) *ShelfService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &ShelfService{
		backend:      backend,
		store:        store,
		resolver:     res,
		reorder:      engine,
		pages:        pages,
		feeds:        feeds,
		emitter:      emitter,
		logger:       logger,
		resolveDepth: 1,
	}

	res.OnResolved(func(shelfID string, state domain.RefState) {
		s.emit(sse.NewReferenceResolvedEvent(shelfID, state))
	})
	engine.OnChange(func(p domain.PendingReorder) {
		s.emit(sse.NewReorderEvent(p.ShelfID, p.Status, p.Order, p.LastError))
	})
	pages.OnUpdate(func(key domain.QueryKey) {
		st := pages.State(key)
		s.emit(sse.NewSourceUpdatedEvent(key, len(st.IDs), st.Exhausted))
	})

	return s
}

// SetResolveDepth sets how many levels of references ShelfView hydrates before
// returning. Depth 1 only schedules fetches for direct references.
func (s *ShelfService) SetResolveDepth(depth int) {
	if depth > 0 {
		s.resolveDepth = depth
	}
}

func (s *ShelfService) emit(event sse.Event) {
	if s.emitter != nil {
		s.emitter.Emit(event)
	}
}

// CacheStats summarizes the cache for health reporting.
type CacheStats struct {
	Shelves      int    `json:"shelves"`
	Version      uint64 `json:"version"`
	PagesVersion uint64 `json:"pages_version"`
}

// Stats reports the cache's current size and versions.
func (s *ShelfService) Stats() CacheStats {
	return CacheStats{
		Shelves:      s.store.ShelfCount(),
		Version:      s.store.Version(),
		PagesVersion: s.pages.Version(),
	}
}
