// Package remote defines the backend boundary of the cache and an HTTP client for it.
package remote

import (
	"context"

	"github.com/listenupapp/shelfcache/internal/domain"
)

// Backend is the authoritative source of shelves, pages and reorder commits.
//
// FetchShelf reports a shelf that does not exist with an error matching
// errors.ErrNotFound; every other error is treated as transient by callers.
type Backend interface {
	FetchShelf(ctx context.Context, id string) (*domain.Shelf, error)
	FetchPage(ctx context.Context, kind domain.QueryKind, key, cursor string, limit int) (*domain.Page, error)
	CommitReorder(ctx context.Context, shelfID string, order []int) error
}

// CommitRequest is the body of a reorder commit.
type CommitRequest struct {
	Order []int `json:"order" validate:"required,min=1"`
}

// Publisher is implemented by backends that accept locally created content.
// Callers type-assert a Backend to Publisher; a backend without it leaves local
// shelves unconfirmed.
type Publisher interface {
	PutShelf(ctx context.Context, shelf *domain.Shelf) error
	AppendItems(ctx context.Context, shelfID string, items []domain.Item) (*domain.Shelf, error)
}

// AppendRequest is the body of an item append.
type AppendRequest struct {
	Items []domain.Item `json:"items" validate:"required,min=1,max=100"`
}
