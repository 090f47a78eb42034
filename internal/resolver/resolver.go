// Package resolver materializes shelf-to-shelf references lazily.
//
// Enrich projects a shelf's ordered items into ResolvedItems and starts at most one
// background fetch per referenced shelf that is not yet cached. Completed fetches
// land in the Store; the next projection picks them up.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/shelfcache/internal/cache"
	"github.com/listenupapp/shelfcache/internal/domain"
	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
)

// DefaultFetchTimeout bounds a single background shelf fetch.
const DefaultFetchTimeout = 30 * time.Second

// ShelfFetcher is the backend boundary for single-shelf fetches.
type ShelfFetcher interface {
	FetchShelf(ctx context.Context, id string) (*domain.Shelf, error)
}

// Resolver tracks in-flight and missing references on top of a Store.
type Resolver struct {
	backend    ShelfFetcher
	store      *cache.Store
	logger     *slog.Logger
	inflight   map[string]chan struct{}
	missing    map[string]bool
	lastErr    map[string]error
	onResolved func(shelfID string, state domain.RefState)
	wg         sync.WaitGroup
	timeout    time.Duration
	mu         sync.Mutex
}

// New creates a Resolver.
func New(backend ShelfFetcher, store *cache.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		backend:  backend,
		store:    store,
		logger:   logger,
		inflight: make(map[string]chan struct{}),
		missing:  make(map[string]bool),
		lastErr:  make(map[string]error),
		timeout:  DefaultFetchTimeout,
	}
}

// SetFetchTimeout overrides the per-fetch timeout.
func (r *Resolver) SetFetchTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// OnResolved registers a callback invoked after every completed fetch with the
// reference's resulting state (resolved, missing or unresolved on failure).
func (r *Resolver) OnResolved(fn func(shelfID string, state domain.RefState)) {
	r.mu.Lock()
	r.onResolved = fn
	r.mu.Unlock()
}

// Enrich returns the shelf's items in display order with references projected, and
// schedules a fetch for every referenced shelf that is neither cached, in flight nor
// known missing. Scheduled references render as loading.
//
// Fetches outlive ctx cancellation; their results are merged even if nobody waits.
func (r *Resolver) Enrich(ctx context.Context, shelfID string) ([]domain.ResolvedItem, error) {
	items, ok := r.store.GetItemsInOrder(shelfID)
	if !ok {
		return nil, domainerrors.NotFoundf("shelf %s is not cached", shelfID)
	}

	var refs []string
	for _, it := range items {
		if it.Item.Content.IsShelfRef() {
			refs = append(refs, it.Item.Content.ShelfRef)
		}
	}
	r.schedule(ctx, refs)

	return r.project(items), nil
}

// View is the pure projection of a shelf: it never starts a fetch.
func (r *Resolver) View(shelfID string) ([]domain.ResolvedItem, error) {
	items, ok := r.store.GetItemsInOrder(shelfID)
	if !ok {
		return nil, domainerrors.NotFoundf("shelf %s is not cached", shelfID)
	}
	return r.project(items), nil
}

// EnrichDeep hydrates references breadth-first up to depth levels below shelfID,
// waiting for each level before descending. Each shelf is visited once, so shared
// and cyclic references terminate.
func (r *Resolver) EnrichDeep(ctx context.Context, shelfID string, depth int) ([]domain.ResolvedItem, error) {
	if !r.store.HasShelf(shelfID) {
		return nil, domainerrors.NotFoundf("shelf %s is not cached", shelfID)
	}

	visited := map[string]bool{shelfID: true}
	level := []string{shelfID}
	for d := 0; d < depth && len(level) > 0; d++ {
		var next []string
		for _, id := range level {
			shelf, ok := r.store.GetShelf(id)
			if !ok {
				continue
			}
			for _, ref := range shelf.ShelfRefs() {
				if visited[ref] {
					continue
				}
				visited[ref] = true
				next = append(next, ref)
			}
		}
		if err := r.await(ctx, r.schedule(ctx, next)); err != nil {
			return nil, err
		}
		level = next
	}
	return r.View(shelfID)
}

// Resolve fetches one shelf synchronously, sharing an in-flight fetch if there is one.
func (r *Resolver) Resolve(ctx context.Context, shelfID string) (domain.RefState, error) {
	if err := r.await(ctx, r.schedule(ctx, []string{shelfID})); err != nil {
		return domain.RefUnresolved, err
	}
	state := r.state(shelfID)
	if state == domain.RefUnresolved {
		if err := r.LastError(shelfID); err != nil {
			return state, err
		}
	}
	return state, nil
}

// LastError returns the error of the most recent failed fetch of shelfID, if any.
func (r *Resolver) LastError(shelfID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr[shelfID]
}

// IsMissing reports whether the backend said shelfID does not exist.
func (r *Resolver) IsMissing(shelfID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.missing[shelfID]
}

// Invalidate forgets that shelfID was missing or failed, so the next projection
// schedules a fresh fetch. An in-flight fetch is left alone.
func (r *Resolver) Invalidate(shelfID string) {
	r.mu.Lock()
	delete(r.missing, shelfID)
	delete(r.lastErr, shelfID)
	r.mu.Unlock()
}

// Wait blocks until every fetch started so far has completed.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// schedule starts a fetch for each id that needs one and returns the completion
// channels of every id in ids that is in flight afterwards.
func (r *Resolver) schedule(ctx context.Context, ids []string) []chan struct{} {
	var waits []chan struct{}
	var start []string

	r.mu.Lock()
	for _, id := range ids {
		if done, ok := r.inflight[id]; ok {
			waits = append(waits, done)
			continue
		}
		if r.missing[id] || r.store.HasShelf(id) {
			continue
		}
		done := make(chan struct{})
		r.inflight[id] = done
		waits = append(waits, done)
		start = append(start, id)
	}
	r.wg.Add(len(start))
	r.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	for _, id := range start {
		go r.fetch(detached, id)
	}
	return waits
}

func (r *Resolver) await(ctx context.Context, waits []chan struct{}) error {
	for _, done := range waits {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *Resolver) fetch(ctx context.Context, id string) {
	defer r.wg.Done()

	state := r.load(ctx, id)

	r.mu.Lock()
	cb := r.onResolved
	r.mu.Unlock()
	if cb != nil {
		cb(id, state)
	}
}

func (r *Resolver) load(ctx context.Context, id string) domain.RefState {
	defer func() {
		r.mu.Lock()
		done := r.inflight[id]
		delete(r.inflight, id)
		r.mu.Unlock()
		if done != nil {
			close(done)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	shelf, err := r.backend.FetchShelf(ctx, id)
	switch {
	case err == nil && shelf != nil:
		r.store.UpsertShelf(shelf)
		r.mu.Lock()
		delete(r.missing, id)
		delete(r.lastErr, id)
		r.mu.Unlock()
		r.logger.Debug("reference resolved", "shelf_id", id)
		return domain.RefResolved

	case err == nil || errors.Is(err, domainerrors.ErrNotFound):
		r.mu.Lock()
		r.missing[id] = true
		delete(r.lastErr, id)
		r.mu.Unlock()
		r.logger.Info("referenced shelf no longer exists", "shelf_id", id)
		return domain.RefMissing

	default:
		r.mu.Lock()
		r.lastErr[id] = domainerrors.TransientFetch(err, "fetch shelf %s", id)
		r.mu.Unlock()
		r.logger.Warn("reference fetch failed", "shelf_id", id, "error", err)
		return domain.RefUnresolved
	}
}

func (r *Resolver) project(items []domain.OrderedItem) []domain.ResolvedItem {
	out := make([]domain.ResolvedItem, 0, len(items))
	for _, it := range items {
		ri := domain.ResolvedItem{Key: it.Key, Content: it.Item.Content}
		if it.Item.Content.IsShelfRef() {
			ri.Ref = r.ref(it.Item.Content.ShelfRef)
		}
		out = append(out, ri)
	}
	return out
}

func (r *Resolver) ref(id string) *domain.ResolvedRef {
	if shelf, ok := r.store.GetShelf(id); ok {
		return &domain.ResolvedRef{ShelfID: id, State: domain.RefResolved, Shelf: shelf}
	}
	return &domain.ResolvedRef{ShelfID: id, State: r.state(id)}
}

func (r *Resolver) state(id string) domain.RefState {
	if r.store.HasShelf(id) {
		return domain.RefResolved
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.inflight[id] != nil:
		return domain.RefLoading
	case r.missing[id]:
		return domain.RefMissing
	default:
		return domain.RefUnresolved
	}
}
