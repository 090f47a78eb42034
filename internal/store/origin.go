package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/shelfcache/internal/domain"
	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
	"github.com/listenupapp/shelfcache/internal/normalize"
	"github.com/listenupapp/shelfcache/internal/remote"
)

var (
	_ remote.Backend   = (*Store)(nil)
	_ remote.Publisher = (*Store)(nil)
)

// FetchShelf implements remote.Backend.
func (s *Store) FetchShelf(ctx context.Context, id string) (*domain.Shelf, error) {
	return s.GetShelf(ctx, id)
}

// CommitReorder implements remote.Backend. The order must list every item key
// of the shelf exactly once.
func (s *Store) CommitReorder(ctx context.Context, shelfID string, order []int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		shelf, err := loadShelfInTxn(txn, shelfID)
		if err != nil {
			return err
		}
		if !isPermutation(order, shelf.ItemKeys()) {
			return ErrOrderMismatch
		}
		shelf.SetOrder(order)
		shelf.Touch()
		return setInTxn(txn, shelfKey(shelfID), shelf)
	})
	if err != nil {
		return fmt.Errorf("commit reorder %s: %w", shelfID, err)
	}

	s.emit(domain.ShelfChanged{ShelfID: shelfID})
	s.logger.Info("reorder committed", "shelf_id", shelfID, "items", len(order))
	return nil
}

// FetchPage implements remote.Backend by dispatching on the query kind.
func (s *Store) FetchPage(ctx context.Context, kind domain.QueryKind, key, cursor string, limit int) (*domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := PaginationParams{Limit: limit, Cursor: cursor}
	params.Validate()

	switch kind {
	case domain.KindPopularTags:
		return s.popularTags(params)
	case domain.KindTagSearch:
		return s.searchTags(ctx, key, params)
	case domain.KindShelvesByTag:
		return s.shelvesByTag(key, params)
	case domain.KindFeed:
		return s.feed(key, params)
	case domain.KindOwnedShelves:
		return s.ownedShelves(key, params)
	default:
		return nil, domainerrors.Validationf("unknown query kind %q", kind)
	}
}

func (s *Store) popularTags(params PaginationParams) (*domain.Page, error) {
	var c domain.PopularityCursor
	ok, err := domain.DecodeCursor(params.Cursor, &c)
	if err != nil {
		return nil, ErrInvalidCursor.WithCause(err)
	}
	after := ""
	if ok {
		after = popularSuffix(c.Count, c.Slug)
	}

	var page *domain.Page
	err = s.db.View(func(txn *badger.Txn) error {
		suffixes, more := scanIndex(txn, tagPopularPrefix, after, params.Limit)
		slugs := make([]string, 0, len(suffixes))
		for _, suffix := range suffixes {
			slugs = append(slugs, lastSegment(suffix))
		}
		entries, err := loadTagEntries(txn, slugs)
		if err != nil {
			return err
		}

		var next any
		if more && len(suffixes) > 0 {
			count, slug, ok := parsePopularSuffix(suffixes[len(suffixes)-1])
			if !ok {
				return fmt.Errorf("corrupt popularity key %q", suffixes[len(suffixes)-1])
			}
			next = domain.PopularityCursor{Count: count, Slug: slug}
		}
		page, err = finishPage(entries, more, next)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("popular tags: %w", err)
	}
	return page, nil
}

func (s *Store) searchTags(ctx context.Context, query string, params PaginationParams) (*domain.Page, error) {
	var c domain.TagPrefixCursor
	if _, err := domain.DecodeCursor(params.Cursor, &c); err != nil {
		return nil, ErrInvalidCursor.WithCause(err)
	}

	var slugs []string
	var more bool
	if s.tagIndex != nil {
		hits, err := s.tagIndex.SearchPrefix(ctx, query, c.Slug, params.Limit+1)
		if err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "tag search failed")
		}
		more = len(hits) > params.Limit
		slugs = hits[:min(len(hits), params.Limit)]
	}

	var page *domain.Page
	err := s.db.View(func(txn *badger.Txn) error {
		if s.tagIndex == nil {
			// Without an index only whole-slug prefixes match.
			prefix := tagPrefix + normalize.TagSlug(query)
			var suffixes []string
			suffixes, more = scanIndex(txn, prefix, strings.TrimPrefix(c.Slug, prefix[len(tagPrefix):]), params.Limit)
			for _, suffix := range suffixes {
				slugs = append(slugs, prefix[len(tagPrefix):]+suffix)
			}
		}

		entries, err := loadTagEntries(txn, slugs)
		if err != nil {
			return err
		}
		var next any
		if more && len(slugs) > 0 {
			next = domain.TagPrefixCursor{Slug: slugs[len(slugs)-1]}
		}
		page, err = finishPage(entries, more, next)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search tags %q: %w", query, err)
	}
	return page, nil
}

func (s *Store) shelvesByTag(slug string, params PaginationParams) (*domain.Page, error) {
	slug = normalize.TagSlug(slug)
	if slug == "" {
		return nil, domainerrors.Validation("tag is required")
	}

	var c domain.TagShelfCursor
	ok, err := domain.DecodeCursor(params.Cursor, &c)
	if err != nil {
		return nil, ErrInvalidCursor.WithCause(err)
	}
	if ok && c.Slug != slug {
		return nil, ErrInvalidCursor.WithDetails(map[string]string{"cursor": "belongs to tag " + c.Slug})
	}

	return s.shelfIndexPage(tagShelvesIndexPrefix(slug), c.ShelfID, params.Limit, func(last string) any {
		return domain.TagShelfCursor{Slug: slug, ShelfID: last}
	})
}

func (s *Store) ownedShelves(ownerID string, params PaginationParams) (*domain.Page, error) {
	if ownerID == "" {
		return nil, domainerrors.Validation("owner is required")
	}
	if strings.ContainsRune(ownerID, ':') {
		return nil, domainerrors.Validationf("owner id %q must not contain ':'", ownerID)
	}

	var c domain.OwnerShelfCursor
	ok, err := domain.DecodeCursor(params.Cursor, &c)
	if err != nil {
		return nil, ErrInvalidCursor.WithCause(err)
	}
	if ok && c.OwnerID != ownerID {
		return nil, ErrInvalidCursor.WithDetails(map[string]string{"cursor": "belongs to owner " + c.OwnerID})
	}

	return s.shelfIndexPage(ownerIndexPrefix(ownerID), c.ShelfID, params.Limit, func(last string) any {
		return domain.OwnerShelfCursor{OwnerID: ownerID, ShelfID: last}
	})
}

func (s *Store) feed(name string, params PaginationParams) (*domain.Page, error) {
	switch name {
	case domain.FeedRecency, domain.FeedRandom, domain.FeedStoryline:
	default:
		return nil, domainerrors.Validationf("unknown feed %q", name)
	}

	var c domain.FeedCursor
	ok, err := domain.DecodeCursor(params.Cursor, &c)
	if err != nil {
		return nil, ErrInvalidCursor.WithCause(err)
	}
	if ok && c.Feed != name {
		return nil, ErrInvalidCursor.WithDetails(map[string]string{"cursor": "belongs to feed " + c.Feed})
	}

	return s.shelfIndexPage(feedIndexPrefix(name), c.Key, params.Limit, func(last string) any {
		return domain.FeedCursor{Feed: name, Key: last}
	})
}

// shelfIndexPage lists shelves from an index whose suffixes end in a shelf ID.
// cursorFor receives the last suffix returned.
func (s *Store) shelfIndexPage(prefix, after string, limit int, cursorFor func(last string) any) (*domain.Page, error) {
	var page *domain.Page
	err := s.db.View(func(txn *badger.Txn) error {
		suffixes, more := scanIndex(txn, prefix, after, limit)
		ids := make([]string, 0, len(suffixes))
		for _, suffix := range suffixes {
			ids = append(ids, lastSegment(suffix))
		}
		entries, err := loadShelfEntries(txn, ids)
		if err != nil {
			return err
		}
		var next any
		if more && len(suffixes) > 0 {
			next = cursorFor(suffixes[len(suffixes)-1])
		}
		page, err = finishPage(entries, more, next)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return page, nil
}

// loadShelfEntries attaches each shelf. Index keys whose shelf vanished are skipped.
func loadShelfEntries(txn *badger.Txn, ids []string) ([]domain.Entry, error) {
	entries := make([]domain.Entry, 0, len(ids))
	for _, id := range ids {
		shelf, err := loadShelfInTxn(txn, id)
		if errors.Is(err, ErrShelfNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, domain.Entry{ID: id, Shelf: shelf})
	}
	return entries, nil
}

func loadTagEntries(txn *badger.Txn, slugs []string) ([]domain.Entry, error) {
	entries := make([]domain.Entry, 0, len(slugs))
	for _, slug := range slugs {
		var t domain.Tag
		err := getInTxn(txn, tagKey(slug), &t)
		if errors.Is(err, badger.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load tag %s: %w", slug, err)
		}
		entries = append(entries, domain.Entry{ID: slug, Tag: &t})
	}
	return entries, nil
}

func finishPage(entries []domain.Entry, more bool, next any) (*domain.Page, error) {
	page := &domain.Page{Entries: entries, Exhausted: !more}
	if more && next != nil {
		token, err := domain.EncodeCursor(next)
		if err != nil {
			return nil, err
		}
		page.NextCursor = token
	}
	return page, nil
}

// isPermutation reports whether order lists exactly the keys in sorted, once each.
func isPermutation(order, sorted []int) bool {
	if len(order) != len(sorted) {
		return false
	}
	seen := make(map[int]bool, len(order))
	for _, k := range order {
		if seen[k] {
			return false
		}
		seen[k] = true
	}
	for _, k := range sorted {
		if !seen[k] {
			return false
		}
	}
	return true
}
