// Package reorder implements optimistic drag-and-drop reordering of shelf items.
//
// A shelf moves through Idle -> Editing -> Saving and back to Idle on a successful
// commit, or to Editing (status failed) when the backend rejects it. The pending
// order lives in the Store so every read path shows it immediately.
package reorder

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/listenupapp/shelfcache/internal/cache"
	"github.com/listenupapp/shelfcache/internal/domain"
	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
)

// Committer persists a reorder on the backend.
type Committer interface {
	CommitReorder(ctx context.Context, shelfID string, order []int) error
}

type session struct {
	lastErr error
	status  domain.ReorderStatus
	saving  bool
	// dirty is set by moves made while a save is in flight.
	dirty bool
}

// Engine holds one edit session per shelf.
type Engine struct {
	backend  Committer
	store    *cache.Store
	logger   *slog.Logger
	sessions map[string]*session
	onChange func(domain.PendingReorder)
	mu       sync.Mutex
}

// New creates an Engine.
func New(backend Committer, store *cache.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		backend:  backend,
		store:    store,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// OnChange registers a callback invoked after every state transition.
func (e *Engine) OnChange(fn func(domain.PendingReorder)) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// BeginEdit starts an edit session seeded with the committed order. Only the shelf's
// owner may edit; an empty viewerID skips the check. Calling BeginEdit on a shelf that
// is already being edited returns the current session.
func (e *Engine) BeginEdit(shelfID, viewerID string) (domain.PendingReorder, error) {
	shelf, ok := e.store.GetShelf(shelfID)
	if !ok {
		return domain.PendingReorder{}, domainerrors.NotFoundf("shelf %s is not cached", shelfID)
	}
	if viewerID != "" && shelf.OwnerID != "" && viewerID != shelf.OwnerID {
		return domain.PendingReorder{}, domainerrors.Forbidden("only the shelf owner can reorder items")
	}

	e.mu.Lock()
	if _, editing := e.sessions[shelfID]; !editing {
		e.store.SetPendingOrder(shelfID, shelf.Order())
		e.sessions[shelfID] = &session{status: domain.ReorderEditing}
		e.logger.Debug("reorder started", "shelf_id", shelfID)
	}
	out := e.snapshot(shelfID)
	e.mu.Unlock()

	e.notify(out)
	return out, nil
}

// MoveItem moves itemKey immediately before (or after) referenceKey in the pending
// order. Only relative rank changes; moving an item relative to itself is a no-op.
// Moves made while saving apply to the next pending order.
func (e *Engine) MoveItem(shelfID string, itemKey, referenceKey int, before bool) (domain.PendingReorder, error) {
	e.mu.Lock()
	s, ok := e.sessions[shelfID]
	if !ok {
		e.mu.Unlock()
		return domain.PendingReorder{}, domainerrors.NotEditingf("shelf %s is not being edited", shelfID)
	}

	order := e.effectiveOrder(shelfID)
	for _, k := range []int{itemKey, referenceKey} {
		if !slices.Contains(order, k) {
			e.mu.Unlock()
			return domain.PendingReorder{}, domainerrors.NotFoundf("item %d not found on shelf %s", k, shelfID)
		}
	}

	if itemKey != referenceKey {
		e.store.SetPendingOrder(shelfID, splice(order, itemKey, referenceKey, before))
		if s.saving {
			s.dirty = true
		}
		if s.status == domain.ReorderFailed {
			s.status = domain.ReorderEditing
		}
	}
	out := e.snapshot(shelfID)
	e.mu.Unlock()

	e.notify(out)
	return out, nil
}

// SaveOrder commits a snapshot of the pending order. Only one save per shelf may be
// in flight; overlapping calls fail with an already-saving error.
//
// On success the snapshot becomes the committed order and the shelf returns to Idle,
// unless items were moved during the save, in which case it stays Editing with the
// newer order pending. On failure the pending order is kept for retry or cancel.
func (e *Engine) SaveOrder(ctx context.Context, shelfID string) (domain.PendingReorder, error) {
	e.mu.Lock()
	s, ok := e.sessions[shelfID]
	if !ok {
		e.mu.Unlock()
		return domain.PendingReorder{}, domainerrors.NotEditingf("shelf %s is not being edited", shelfID)
	}
	if s.saving {
		e.mu.Unlock()
		return domain.PendingReorder{}, domainerrors.AlreadySavingf("shelf %s is already saving", shelfID)
	}
	s.saving = true
	s.dirty = false
	s.status = domain.ReorderSaving
	snapshot := e.effectiveOrder(shelfID)
	committed, _ := e.store.CommittedOrder(shelfID)
	saving := e.snapshot(shelfID)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		s.saving = false
		e.mu.Unlock()
	}()
	e.notify(saving)

	var err error
	if !slices.Equal(snapshot, committed) {
		err = e.backend.CommitReorder(ctx, shelfID, snapshot)
	}

	e.mu.Lock()
	if err != nil {
		s.status = domain.ReorderFailed
		s.lastErr = err
		out := e.snapshot(shelfID)
		e.mu.Unlock()

		e.logger.Warn("reorder commit failed", "shelf_id", shelfID, "error", err)
		e.notify(out)
		return out, domainerrors.ReorderCommit(err, shelfID)
	}

	if cerr := e.store.CommitOrder(shelfID, snapshot); cerr != nil {
		// Shelves with a pending order are never evicted.
		e.logger.Warn("commit order on uncached shelf", "shelf_id", shelfID, "error", cerr)
	}
	s.lastErr = nil

	var out domain.PendingReorder
	if s.dirty {
		s.status = domain.ReorderEditing
		out = e.snapshot(shelfID)
	} else {
		delete(e.sessions, shelfID)
		e.store.ClearPendingOrder(shelfID)
		out = domain.PendingReorder{ShelfID: shelfID, Order: snapshot, Status: domain.ReorderCommitted}
	}
	e.mu.Unlock()

	e.logger.Info("reorder committed", "shelf_id", shelfID, "items", len(snapshot), "still_editing", out.Status == domain.ReorderEditing)
	e.notify(out)
	return out, nil
}

// CancelEdit discards the pending order without contacting the backend. Cancelling
// while a save is in flight is rejected; cancelling an idle shelf is a no-op.
func (e *Engine) CancelEdit(shelfID string) error {
	e.mu.Lock()
	s, ok := e.sessions[shelfID]
	if !ok {
		e.mu.Unlock()
		return nil
	}
	if s.saving {
		e.mu.Unlock()
		return domainerrors.AlreadySavingf("shelf %s is saving and cannot be cancelled", shelfID)
	}
	delete(e.sessions, shelfID)
	e.store.ClearPendingOrder(shelfID)
	e.mu.Unlock()

	e.logger.Debug("reorder cancelled", "shelf_id", shelfID)
	e.notify(domain.PendingReorder{ShelfID: shelfID, Status: domain.ReorderIdle})
	return nil
}

// Status returns the shelf's reorder state.
func (e *Engine) Status(shelfID string) domain.PendingReorder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(shelfID)
}

// snapshot describes the shelf's session. Caller holds e.mu.
func (e *Engine) snapshot(shelfID string) domain.PendingReorder {
	s, ok := e.sessions[shelfID]
	if !ok {
		return domain.PendingReorder{ShelfID: shelfID, Status: domain.ReorderIdle}
	}
	out := domain.PendingReorder{
		ShelfID: shelfID,
		Order:   e.effectiveOrder(shelfID),
		Status:  s.status,
	}
	if s.lastErr != nil {
		out.LastError = s.lastErr.Error()
	}
	return out
}

// effectiveOrder is the displayed order: the pending order with vanished keys
// dropped and newly arrived items appended.
func (e *Engine) effectiveOrder(shelfID string) []int {
	items, _ := e.store.GetItemsInOrder(shelfID)
	keys := make([]int, len(items))
	for i, it := range items {
		keys[i] = it.Key
	}
	return keys
}

func (e *Engine) notify(p domain.PendingReorder) {
	e.mu.Lock()
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// splice removes item from order and reinserts it next to ref.
func splice(order []int, item, ref int, before bool) []int {
	out := make([]int, 0, len(order))
	for _, k := range order {
		if k != item {
			out = append(out, k)
		}
	}
	idx := slices.Index(out, ref)
	if !before {
		idx++
	}
	return slices.Insert(out, idx, item)
}
