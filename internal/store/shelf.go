package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/shelfcache/internal/domain"
	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
	"github.com/listenupapp/shelfcache/internal/normalize"
)

// PutShelf creates or replaces a shelf. The shelf record, the owner and feed
// indexes and the tag associations are written in one transaction.
func (s *Store) PutShelf(ctx context.Context, shelf *domain.Shelf) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	next, err := s.prepareShelf(shelf)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var delta tagDelta
	created := false
	err = s.db.Update(func(txn *badger.Txn) error {
		old, err := loadShelfInTxn(txn, next.ID)
		if err != nil && !errors.Is(err, ErrShelfNotFound) {
			return err
		}
		if old != nil {
			if old.OwnerID != next.OwnerID {
				return ErrOwnerImmutable
			}
			next.CreatedAt = old.CreatedAt
		} else {
			created = true
		}
		delta, err = writeShelfInTxn(txn, old, next)
		return err
	})
	if err != nil {
		return fmt.Errorf("put shelf %s: %w", next.ID, err)
	}

	s.syncTagIndex(ctx, delta)
	s.emit(domain.ShelfChanged{ShelfID: next.ID})

	s.logger.Info("shelf stored",
		"id", next.ID,
		"owner_id", next.OwnerID,
		"created", created,
		"item_count", len(next.Items),
		"tag_count", len(next.Tags),
	)
	return nil
}

// GetShelf retrieves a shelf by ID.
func (s *Store) GetShelf(ctx context.Context, id string) (*domain.Shelf, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var shelf domain.Shelf
	if err := s.get(shelfKey(id), &shelf); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrShelfNotFound
		}
		return nil, fmt.Errorf("get shelf: %w", err)
	}
	return &shelf, nil
}

// ShelfExists reports whether a shelf with the given ID is stored.
func (s *Store) ShelfExists(_ context.Context, id string) (bool, error) {
	return s.exists(shelfKey(id))
}

// DeleteShelf removes a shelf together with its index entries.
func (s *Store) DeleteShelf(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var delta tagDelta
	err := s.db.Update(func(txn *badger.Txn) error {
		old, err := loadShelfInTxn(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(shelfKey(id)); err != nil {
			return fmt.Errorf("delete shelf: %w", err)
		}
		if err := deleteShelfIndexes(txn, old); err != nil {
			return err
		}
		delta, err = applyTagDelta(txn, id, old.Tags, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete shelf %s: %w", id, err)
	}

	s.syncTagIndex(ctx, delta)
	s.emit(domain.ShelfChanged{ShelfID: id, Deleted: true})

	s.logger.Info("shelf deleted", "id", id)
	return nil
}

// AppendItems adds items after the shelf's last position. Keys already on the
// shelf are rejected. The read and the write happen in one transaction under
// writeMu, so concurrent appends never overwrite each other.
func (s *Store) AppendItems(ctx context.Context, shelfID string, items []domain.Item) (*domain.Shelf, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var (
		delta tagDelta
		next  *domain.Shelf
	)
	err := s.db.Update(func(txn *badger.Txn) error {
		old, err := loadShelfInTxn(txn, shelfID)
		if err != nil {
			return err
		}
		merged := old.Clone()
		for _, it := range items {
			if !merged.Append(it) {
				return domainerrors.Conflictf("item %d already exists on shelf %s", it.Key, shelfID)
			}
		}
		if next, err = s.prepareShelf(merged); err != nil {
			return err
		}
		next.CreatedAt = old.CreatedAt
		delta, err = writeShelfInTxn(txn, old, next)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("append items to shelf %s: %w", shelfID, err)
	}

	s.syncTagIndex(ctx, delta)
	s.emit(domain.ShelfChanged{ShelfID: shelfID})

	s.logger.Info("items appended", "id", shelfID, "added", len(items), "item_count", len(next.Items))
	return next, nil
}

// prepareShelf returns a validated, normalized copy ready for storage.
func (s *Store) prepareShelf(in *domain.Shelf) (*domain.Shelf, error) {
	if in == nil {
		return nil, domainerrors.Validation("shelf is required")
	}

	shelf := in.Clone()
	shelf.Title = normalize.Text(shelf.Title)
	shelf.Description = normalize.Text(shelf.Description)
	shelf.Tags = normalize.TagSlugs(shelf.Tags)
	shelf.Unconfirmed = false

	if err := s.validator.Validate(shelf); err != nil {
		return nil, err
	}
	if strings.ContainsRune(shelf.ID, ':') {
		return nil, domainerrors.Validationf("shelf id %q must not contain ':'", shelf.ID)
	}
	for _, key := range shelf.ItemKeys() {
		it := shelf.Items[key]
		if it.Key != key {
			return nil, domainerrors.Validationf("item key %d does not match its map key %d", it.Key, key)
		}
		if err := it.Content.Validate(); err != nil {
			return nil, domainerrors.Validationf("item %d: %v", key, err)
		}
		if it.Content.IsShelfRef() && it.Content.ShelfRef == shelf.ID {
			return nil, domainerrors.Validationf("item %d references its own shelf", key)
		}
	}

	now := time.Now()
	if shelf.CreatedAt.IsZero() {
		shelf.CreatedAt = now
	}
	shelf.UpdatedAt = now
	shelf.Normalize()
	return shelf, nil
}

// writeShelfInTxn stores next with its indexes and applies the tag count
// changes relative to old, which may be nil.
func writeShelfInTxn(txn *badger.Txn, old, next *domain.Shelf) (tagDelta, error) {
	if err := setInTxn(txn, shelfKey(next.ID), next); err != nil {
		return tagDelta{}, fmt.Errorf("set shelf: %w", err)
	}
	if err := writeShelfIndexes(txn, next); err != nil {
		return tagDelta{}, err
	}
	var oldTags []string
	if old != nil {
		oldTags = old.Tags
	}
	return applyTagDelta(txn, next.ID, oldTags, next.Tags)
}

func loadShelfInTxn(txn *badger.Txn, id string) (*domain.Shelf, error) {
	var shelf domain.Shelf
	if err := getInTxn(txn, shelfKey(id), &shelf); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrShelfNotFound
		}
		return nil, fmt.Errorf("load shelf: %w", err)
	}
	return &shelf, nil
}

// writeShelfIndexes sets the owner and feed index keys for shelf.
// Sort keys derive from fields that never change, so rewriting is idempotent.
func writeShelfIndexes(txn *badger.Txn, shelf *domain.Shelf) error {
	recency := recencySuffix(shelf.CreatedAt, shelf.ID)

	sets := [][]byte{
		[]byte(ownerIndexPrefix(shelf.OwnerID) + shelf.ID),
		[]byte(feedIndexPrefix(domain.FeedRecency) + recency),
		[]byte(feedIndexPrefix(domain.FeedRandom) + randomSuffix(shelf.ID)),
	}
	for _, key := range sets {
		if err := txn.Set(key, nil); err != nil {
			return fmt.Errorf("set index %s: %w", key, err)
		}
	}

	storyKey := []byte(feedIndexPrefix(domain.FeedStoryline) + recency)
	if len(shelf.ShelfRefs()) > 0 {
		if err := txn.Set(storyKey, nil); err != nil {
			return fmt.Errorf("set storyline index: %w", err)
		}
		return nil
	}
	if err := txn.Delete(storyKey); err != nil {
		return fmt.Errorf("delete storyline index: %w", err)
	}
	return nil
}

func deleteShelfIndexes(txn *badger.Txn, shelf *domain.Shelf) error {
	recency := recencySuffix(shelf.CreatedAt, shelf.ID)
	keys := [][]byte{
		[]byte(ownerIndexPrefix(shelf.OwnerID) + shelf.ID),
		[]byte(feedIndexPrefix(domain.FeedRecency) + recency),
		[]byte(feedIndexPrefix(domain.FeedRandom) + randomSuffix(shelf.ID)),
		[]byte(feedIndexPrefix(domain.FeedStoryline) + recency),
	}
	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("delete index %s: %w", key, err)
		}
	}
	return nil
}

// tagsAdded returns the elements of next not in prev. Both are sorted sets.
func tagsAdded(prev, next []string) []string {
	var out []string
	for _, t := range next {
		if !slices.Contains(prev, t) {
			out = append(out, t)
		}
	}
	return out
}
