package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/shelfcache/internal/domain"
)

// tagDelta records the tags whose counts moved in one transaction.
type tagDelta struct {
	updated []*domain.Tag
	dropped []string
}

// GetTag retrieves a tag by slug.
func (s *Store) GetTag(ctx context.Context, slug string) (*domain.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var t domain.Tag
	if err := s.get(tagKey(slug), &t); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrTagNotFound
		}
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return &t, nil
}

// ListTags returns every tag in slug order.
func (s *Store) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tags []*domain.Tag
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(tagPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var t domain.Tag
				if err := json.Unmarshal(val, &t); err != nil {
					return err
				}
				tags = append(tags, &t)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// applyTagDelta moves the shelf's tag associations from prev to next and
// adjusts each affected tag's shelf count.
func applyTagDelta(txn *badger.Txn, shelfID string, prev, next []string) (tagDelta, error) {
	var delta tagDelta

	for _, slug := range tagsAdded(prev, next) {
		if err := txn.Set([]byte(tagShelvesIndexPrefix(slug)+shelfID), nil); err != nil {
			return delta, fmt.Errorf("set tag-shelf index: %w", err)
		}
		t, err := adjustTagCountInTxn(txn, slug, 1)
		if err != nil {
			return delta, err
		}
		delta.updated = append(delta.updated, t)
	}

	for _, slug := range tagsAdded(next, prev) {
		if err := txn.Delete([]byte(tagShelvesIndexPrefix(slug) + shelfID)); err != nil {
			return delta, fmt.Errorf("delete tag-shelf index: %w", err)
		}
		t, err := adjustTagCountInTxn(txn, slug, -1)
		if err != nil {
			return delta, err
		}
		if t == nil {
			delta.dropped = append(delta.dropped, slug)
			continue
		}
		delta.updated = append(delta.updated, t)
	}

	return delta, nil
}

// adjustTagCountInTxn changes a tag's shelf count and rewrites its popularity key.
// A tag whose count reaches zero is deleted and nil is returned.
func adjustTagCountInTxn(txn *badger.Txn, slug string, change int) (*domain.Tag, error) {
	t := &domain.Tag{Slug: slug}
	err := getInTxn(txn, tagKey(slug), t)
	switch {
	case err == nil:
		if err := txn.Delete([]byte(tagPopularPrefix + popularSuffix(t.ShelfCount, slug))); err != nil {
			return nil, fmt.Errorf("delete popularity index: %w", err)
		}
	case errors.Is(err, badger.ErrKeyNotFound):
	default:
		return nil, fmt.Errorf("load tag %s: %w", slug, err)
	}

	t.ShelfCount += change
	if t.ShelfCount <= 0 {
		if err := txn.Delete(tagKey(slug)); err != nil {
			return nil, fmt.Errorf("delete tag: %w", err)
		}
		return nil, nil
	}

	t.Touch()
	if err := setInTxn(txn, tagKey(slug), t); err != nil {
		return nil, fmt.Errorf("set tag: %w", err)
	}
	if err := txn.Set([]byte(tagPopularPrefix+popularSuffix(t.ShelfCount, slug)), nil); err != nil {
		return nil, fmt.Errorf("set popularity index: %w", err)
	}
	return t, nil
}

// syncTagIndex pushes committed tag changes to the search index.
// Index failures are logged; the store remains authoritative.
func (s *Store) syncTagIndex(ctx context.Context, delta tagDelta) {
	if s.tagIndex == nil {
		return
	}
	if len(delta.updated) > 0 {
		if err := s.tagIndex.IndexTags(ctx, delta.updated); err != nil {
			s.logger.Warn("failed to index tags", "count", len(delta.updated), "error", err)
		}
	}
	for _, slug := range delta.dropped {
		if err := s.tagIndex.DeleteTag(ctx, slug); err != nil {
			s.logger.Warn("failed to remove tag from index", "slug", slug, "error", err)
		}
	}
}
