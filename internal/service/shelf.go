package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/listenupapp/shelfcache/internal/domain"
	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
	"github.com/listenupapp/shelfcache/internal/id"
	"github.com/listenupapp/shelfcache/internal/normalize"
	"github.com/listenupapp/shelfcache/internal/remote"
	"github.com/listenupapp/shelfcache/internal/sse"
	"github.com/listenupapp/shelfcache/internal/validation"
)

// refreshTimeout bounds a refetch triggered by an origin change notification.
const refreshTimeout = 10 * time.Second

// maxKeyAttempts bounds item key generation when a random key collides.
const maxKeyAttempts = 5

// ShelfView is a shelf as the viewer currently sees it: the pending order if a
// reorder is in progress, with shelf references projected.
type ShelfView struct {
	UpdatedAt   time.Time             `json:"updated_at"`
	ID          string                `json:"id"`
	OwnerID     string                `json:"owner_id"`
	Title       string                `json:"title"`
	Description string                `json:"description,omitempty"`
	Tags        []string              `json:"tags"`
	Items       []domain.ResolvedItem `json:"items"`
	Reorder     domain.PendingReorder `json:"reorder"`
	Unconfirmed bool                  `json:"unconfirmed,omitempty"`
}

// CreateShelfInput describes a shelf created on this client.
type CreateShelfInput struct {
	OwnerID     string           `json:"owner_id" validate:"required,max=64,excludes=:"`
	Title       string           `json:"title" validate:"required,max=200"`
	Description string           `json:"description" validate:"max=2000"`
	Tags        []string         `json:"tags" validate:"max=16"`
	Items       []domain.Content `json:"items" validate:"max=100"`
}

var inputValidator = validation.New()

// ShelfView returns the shelf's current view, fetching the shelf if it is not
// cached. References are hydrated up to the configured depth; deeper ones are
// scheduled and show as loading.
func (s *ShelfService) ShelfView(ctx context.Context, shelfID string) (*ShelfView, error) {
	if err := s.ensureShelf(ctx, shelfID); err != nil {
		return nil, err
	}

	if s.resolveDepth > 1 {
		if _, err := s.resolver.EnrichDeep(ctx, shelfID, s.resolveDepth-1); err != nil {
			return nil, err
		}
	}
	items, err := s.resolver.Enrich(ctx, shelfID)
	if err != nil {
		return nil, err
	}
	return s.buildView(shelfID, items)
}

// Refresh refetches a shelf from the backend and merges it. A pending reorder
// survives the merge. A shelf the backend no longer has is evicted.
func (s *ShelfService) Refresh(ctx context.Context, shelfID string) error {
	shelf, err := s.backend.FetchShelf(ctx, shelfID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			s.forget(shelfID)
			return domainerrors.NotFoundf("shelf %s not found", shelfID)
		}
		return domainerrors.TransientFetch(err, "refresh shelf %s", shelfID)
	}

	s.store.UpsertShelf(shelf)
	s.emit(sse.NewShelfUpdatedEvent(shelfID, s.store.Version(), false))
	return nil
}

// Emit receives change notifications from an embedded origin and refreshes
// affected shelves that are cached. It lets the service serve as the origin
// store's event emitter.
func (s *ShelfService) Emit(event any) {
	change, ok := event.(domain.ShelfChanged)
	if !ok {
		return
	}

	s.resolver.Invalidate(change.ShelfID)
	if !s.store.HasShelf(change.ShelfID) {
		return
	}
	if change.Deleted {
		s.forget(change.ShelfID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := s.Refresh(ctx, change.ShelfID); err != nil {
		s.logger.Warn("failed to refresh changed shelf", "shelf_id", change.ShelfID, "error", err)
	}
}

// CreateShelf inserts a new shelf into the cache immediately, marked
// unconfirmed, and publishes it when the backend accepts writes. A rejected
// publish removes the shelf again.
func (s *ShelfService) CreateShelf(ctx context.Context, in CreateShelfInput) (*ShelfView, error) {
	in.Title = normalize.Text(in.Title)
	in.Description = normalize.Text(in.Description)
	if err := inputValidator.Validate(in); err != nil {
		return nil, err
	}

	shelfID, err := id.Generate(id.LocalPrefix)
	if err != nil {
		return nil, fmt.Errorf("generate shelf ID: %w", err)
	}

	shelf := domain.NewShelf(shelfID, in.OwnerID, in.Title)
	shelf.Description = in.Description
	shelf.Tags = normalize.TagSlugs(in.Tags)
	shelf.Unconfirmed = true
	items, err := newItems(shelf, in.Items)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		shelf.Append(it)
	}

	s.store.UpsertShelf(shelf)
	s.emit(sse.NewShelfUpdatedEvent(shelfID, s.store.Version(), false))

	s.logger.Info("shelf created locally",
		"shelf_id", shelfID,
		"owner_id", in.OwnerID,
		"item_count", len(items),
	)

	if pub, ok := s.backend.(remote.Publisher); ok {
		if err := pub.PutShelf(ctx, shelf); err != nil {
			s.forget(shelfID)
			s.logger.Warn("shelf publish rejected", "shelf_id", shelfID, "error", err)
			return nil, publishError(err, "publish shelf %s", shelfID)
		}
		if err := s.Refresh(ctx, shelfID); err != nil {
			s.logger.Warn("published shelf not confirmed yet", "shelf_id", shelfID, "error", err)
		}
	}

	return s.View(shelfID)
}

// AddItems appends items to a shelf. They show immediately, marked
// unconfirmed until the backend echoes them; a rejected publish removes them.
// Only the owner may add items; an empty viewerID skips the check.
func (s *ShelfService) AddItems(ctx context.Context, shelfID, viewerID string, contents []domain.Content) (*ShelfView, error) {
	if len(contents) == 0 {
		return nil, domainerrors.Validation("at least one item is required")
	}
	if err := s.ensureShelf(ctx, shelfID); err != nil {
		return nil, err
	}
	shelf, ok := s.store.GetShelf(shelfID)
	if !ok {
		return nil, domainerrors.NotFoundf("shelf %s not found", shelfID)
	}
	if viewerID != "" && viewerID != shelf.OwnerID {
		return nil, domainerrors.Forbidden("only the shelf owner can add items")
	}

	items, err := newItems(shelf, contents)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpsertItems(shelfID, items); err != nil {
		return nil, err
	}
	s.emit(sse.NewShelfUpdatedEvent(shelfID, s.store.Version(), false))

	if pub, ok := s.backend.(remote.Publisher); ok {
		confirmed, err := pub.AppendItems(ctx, shelfID, items)
		if err != nil {
			keys := make([]int, len(items))
			for i, it := range items {
				keys[i] = it.Key
			}
			if rerr := s.store.RemoveItems(shelfID, keys); rerr != nil {
				s.logger.Warn("rollback of unpublished items failed", "shelf_id", shelfID, "error", rerr)
			}
			s.emit(sse.NewShelfUpdatedEvent(shelfID, s.store.Version(), false))
			s.logger.Warn("item publish rejected", "shelf_id", shelfID, "count", len(items), "error", err)
			return nil, publishError(err, "publish items to shelf %s", shelfID)
		}
		s.store.UpsertShelf(confirmed)
		s.emit(sse.NewShelfUpdatedEvent(shelfID, s.store.Version(), false))
	}

	s.logger.Info("items added", "shelf_id", shelfID, "count", len(items))
	return s.View(shelfID)
}

// View projects a cached shelf without fetching anything.
func (s *ShelfService) View(shelfID string) (*ShelfView, error) {
	items, err := s.resolver.View(shelfID)
	if err != nil {
		return nil, err
	}
	return s.buildView(shelfID, items)
}

// ensureShelf fetches shelfID unless it is cached. A shelf previously reported
// missing is asked for again.
func (s *ShelfService) ensureShelf(ctx context.Context, shelfID string) error {
	if shelfID == "" {
		return domainerrors.Validation("shelf id is required")
	}
	if s.store.HasShelf(shelfID) {
		return nil
	}

	s.resolver.Invalidate(shelfID)
	state, err := s.resolver.Resolve(ctx, shelfID)
	if err != nil {
		return err
	}
	switch state {
	case domain.RefResolved:
		return nil
	case domain.RefMissing:
		return domainerrors.NotFoundf("shelf %s not found", shelfID)
	default:
		return domainerrors.TransientFetch(errors.New("shelf not cached after fetch"), "fetch shelf %s", shelfID)
	}
}

func (s *ShelfService) buildView(shelfID string, items []domain.ResolvedItem) (*ShelfView, error) {
	shelf, ok := s.store.GetShelf(shelfID)
	if !ok {
		return nil, domainerrors.NotFoundf("shelf %s is not cached", shelfID)
	}
	tags := shelf.Tags
	if tags == nil {
		tags = []string{}
	}
	return &ShelfView{
		ID:          shelf.ID,
		OwnerID:     shelf.OwnerID,
		Title:       shelf.Title,
		Description: shelf.Description,
		Tags:        tags,
		Unconfirmed: shelf.Unconfirmed,
		UpdatedAt:   shelf.UpdatedAt,
		Items:       items,
		Reorder:     s.reorder.Status(shelfID),
	}, nil
}

// forget drops a shelf the backend does not have and tells clients.
func (s *ShelfService) forget(shelfID string) {
	if s.store.Evict(shelfID) {
		s.logger.Info("shelf removed from cache", "shelf_id", shelfID)
	}
	s.emit(sse.NewShelfUpdatedEvent(shelfID, s.store.Version(), true))
}

// newItems assigns fresh keys to contents, avoiding keys already on shelf.
func newItems(shelf *domain.Shelf, contents []domain.Content) ([]domain.Item, error) {
	now := time.Now()
	taken := make(map[int]bool, len(shelf.Items)+len(contents))
	for k := range shelf.Items {
		taken[k] = true
	}

	items := make([]domain.Item, 0, len(contents))
	for i, c := range contents {
		if err := c.Validate(); err != nil {
			return nil, domainerrors.Validationf("item %d: %v", i, err)
		}
		if c.IsShelfRef() && c.ShelfRef == shelf.ID {
			return nil, domainerrors.Validationf("item %d references its own shelf", i)
		}
		key, err := freeKey(taken)
		if err != nil {
			return nil, err
		}
		taken[key] = true
		items = append(items, domain.Item{Key: key, Content: c, AddedAt: now})
	}
	return items, nil
}

func freeKey(taken map[int]bool) (int, error) {
	for range maxKeyAttempts {
		key, err := id.ItemKey()
		if err != nil {
			return 0, err
		}
		if !taken[key] {
			return key, nil
		}
	}
	return 0, fmt.Errorf("no free item key after %d attempts", maxKeyAttempts)
}

// publishError keeps coded origin errors and treats the rest as transient.
func publishError(err error, format string, args ...any) error {
	if _, ok := domainerrors.AsError(err); ok {
		return err
	}
	return domainerrors.TransientFetch(err, format, args...)
}
