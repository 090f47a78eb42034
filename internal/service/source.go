package service

import (
	"context"
	"strings"

	"github.com/listenupapp/shelfcache/internal/domain"
	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
	"github.com/listenupapp/shelfcache/internal/feed"
	"github.com/listenupapp/shelfcache/internal/normalize"
	"github.com/listenupapp/shelfcache/internal/pagination"
)

// SourceView is one accumulated result stream with its cached entities.
type SourceView struct {
	pagination.Result
	Entries []domain.Entry `json:"entries"`
}

// FeedView is a merged feed with its cached shelves in display order.
type FeedView struct {
	feed.View
	Shelves []*domain.Shelf `json:"shelves"`
}

// QueryKey validates and canonicalizes a source key. Tag keys are slugged so
// spellings of one tag share a stream.
func QueryKey(kind domain.QueryKind, key string) (domain.QueryKey, error) {
	if !kind.Valid() {
		return domain.QueryKey{}, domainerrors.Validationf("unknown query kind %q", kind)
	}
	key = strings.TrimSpace(key)

	switch kind {
	case domain.KindPopularTags:
		key = ""
	case domain.KindShelvesByTag:
		key = normalize.TagSlug(key)
		if key == "" {
			return domain.QueryKey{}, domainerrors.Validation("tag is required")
		}
	case domain.KindTagSearch:
		key = strings.ToLower(key)
	case domain.KindFeed, domain.KindOwnedShelves:
		if key == "" {
			return domain.QueryKey{}, domainerrors.Validationf("%s requires a key", kind)
		}
		if kind == domain.KindOwnedShelves && strings.ContainsRune(key, ':') {
			return domain.QueryKey{}, domainerrors.Validationf("owner id %q must not contain ':'", key)
		}
	}
	return domain.QueryKey{Kind: kind, Key: key}, nil
}

// Source returns what has been accumulated for a stream without fetching.
func (s *ShelfService) Source(kind domain.QueryKind, key string) (SourceView, error) {
	qk, err := QueryKey(kind, key)
	if err != nil {
		return SourceView{}, err
	}
	return s.sourceView(s.pages.State(qk)), nil
}

// LoadMore fetches the next page of a stream. A failed fetch still returns the
// accumulated state alongside the error.
func (s *ShelfService) LoadMore(ctx context.Context, kind domain.QueryKind, key string) (SourceView, error) {
	qk, err := QueryKey(kind, key)
	if err != nil {
		return SourceView{}, err
	}
	res, err := s.pages.LoadMore(ctx, qk)
	return s.sourceView(res), err
}

// FeedView returns the merged view of a feed mode without fetching.
func (s *ShelfService) FeedView(mode, viewerID string) (FeedView, error) {
	v, err := s.feeds.ModeView(mode, viewerID)
	if err != nil {
		return FeedView{}, err
	}
	return s.feedView(v), nil
}

// LoadMoreFeed fetches the next page of every source behind a feed mode.
func (s *ShelfService) LoadMoreFeed(ctx context.Context, mode, viewerID string) (FeedView, error) {
	v, err := s.feeds.LoadMore(ctx, mode, viewerID)
	if err != nil && len(v.Sources) == 0 {
		return FeedView{}, err
	}
	return s.feedView(v), err
}

func (s *ShelfService) sourceView(res pagination.Result) SourceView {
	entries := make([]domain.Entry, 0, len(res.IDs))
	for _, entryID := range res.IDs {
		e := domain.Entry{ID: entryID}
		if res.Key.Kind.ReturnsTags() {
			if t, ok := s.store.GetTag(entryID); ok {
				e.Tag = t
			}
		} else if shelf, ok := s.store.GetShelf(entryID); ok {
			e.Shelf = shelf
		}
		entries = append(entries, e)
	}
	return SourceView{Result: res, Entries: entries}
}

func (s *ShelfService) feedView(v feed.View) FeedView {
	shelves := make([]*domain.Shelf, 0, len(v.IDs))
	for _, shelfID := range v.IDs {
		if shelf, ok := s.store.GetShelf(shelfID); ok {
			shelves = append(shelves, shelf)
		}
	}
	return FeedView{View: v, Shelves: shelves}
}
