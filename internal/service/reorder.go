package service

import (
	"context"

	"github.com/listenupapp/shelfcache/internal/domain"
	"github.com/listenupapp/shelfcache/internal/sse"
)

// BeginEdit starts a reorder session for the shelf's owner, fetching the shelf
// first if it is not cached.
func (s *ShelfService) BeginEdit(ctx context.Context, shelfID, viewerID string) (domain.PendingReorder, error) {
	if err := s.ensureShelf(ctx, shelfID); err != nil {
		return domain.PendingReorder{}, err
	}
	return s.reorder.BeginEdit(shelfID, viewerID)
}

// MoveItem places itemKey before or after referenceKey in the pending order.
func (s *ShelfService) MoveItem(shelfID string, itemKey, referenceKey int, before bool) (domain.PendingReorder, error) {
	return s.reorder.MoveItem(shelfID, itemKey, referenceKey, before)
}

// SaveOrder commits the pending order. The shelf view changes on success, so
// clients are told to re-read it.
func (s *ShelfService) SaveOrder(ctx context.Context, shelfID string) (domain.PendingReorder, error) {
	out, err := s.reorder.SaveOrder(ctx, shelfID)
	if err != nil {
		return out, err
	}
	s.emit(sse.NewShelfUpdatedEvent(shelfID, s.store.Version(), false))
	return out, nil
}

// CancelEdit discards the pending order and returns the resulting state.
func (s *ShelfService) CancelEdit(shelfID string) (domain.PendingReorder, error) {
	if err := s.reorder.CancelEdit(shelfID); err != nil {
		return s.reorder.Status(shelfID), err
	}
	return s.reorder.Status(shelfID), nil
}

// ReorderStatus returns the shelf's reorder state without side effects.
func (s *ShelfService) ReorderStatus(shelfID string) domain.PendingReorder {
	return s.reorder.Status(shelfID)
}
