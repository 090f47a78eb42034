package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/shelfcache/internal/domain"
	"github.com/listenupapp/shelfcache/internal/service"
)

func (s *Server) registerShelfRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getShelf",
		Method:      http.MethodGet,
		Path:        "/api/v1/shelves/{id}",
		Summary:     "Get shelf",
		Description: "Returns the shelf as currently seen: the pending order while a reorder is in progress, with shelf references projected. Missing references are fetched in the background and show as loading.",
		Tags:        []string{"Shelves"},
	}, s.handleGetShelf)

	huma.Register(s.api, huma.Operation{
		OperationID: "refreshShelf",
		Method:      http.MethodPost,
		Path:        "/api/v1/shelves/{id}/refresh",
		Summary:     "Refresh shelf",
		Description: "Refetches the shelf from the origin and merges it into the cache",
		Tags:        []string{"Shelves"},
	}, s.handleRefreshShelf)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createShelf",
		Method:        http.MethodPost,
		Path:          "/api/v1/shelves",
		Summary:       "Create shelf",
		Description:   "Creates a shelf owned by the viewer. It is visible immediately and marked unconfirmed until the origin accepts it.",
		Tags:          []string{"Shelves"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateShelf)

	huma.Register(s.api, huma.Operation{
		OperationID: "addShelfItems",
		Method:      http.MethodPost,
		Path:        "/api/v1/shelves/{id}/items",
		Summary:     "Add items",
		Description: "Appends items to a shelf (owner only). Items the origin rejects are removed again.",
		Tags:        []string{"Shelves"},
	}, s.handleAddItems)
}

// === DTOs ===

// GetShelfInput contains parameters for reading a shelf.
type GetShelfInput struct {
	ID string `path:"id" doc:"Shelf ID"`
}

// ShelfOutput wraps a shelf view for Huma.
type ShelfOutput struct {
	Body *service.ShelfView
}

// CreateShelfRequest is the request body for creating a shelf.
type CreateShelfRequest struct {
	Title       string           `json:"title" minLength:"1" maxLength:"200" doc:"Shelf title"`
	Description string           `json:"description,omitempty" maxLength:"2000" doc:"Shelf description"`
	Tags        []string         `json:"tags,omitempty" maxItems:"16" doc:"Tags; normalized to slugs"`
	Items       []domain.Content `json:"items,omitempty" maxItems:"100" doc:"Initial items in display order"`
}

// CreateShelfInput wraps the create shelf request for Huma.
type CreateShelfInput struct {
	ViewerID string `header:"X-Viewer-ID" required:"true" doc:"Owner of the new shelf"`
	Body     CreateShelfRequest
}

// AddItemsRequest is the request body for appending items.
type AddItemsRequest struct {
	Items []domain.Content `json:"items" minItems:"1" maxItems:"100" doc:"Items to append in order"`
}

// AddItemsInput wraps the add items request for Huma.
type AddItemsInput struct {
	ID       string `path:"id" doc:"Shelf ID"`
	ViewerID string `header:"X-Viewer-ID" doc:"Viewer; must own the shelf when given"`
	Body     AddItemsRequest
}

// === Handlers ===

func (s *Server) handleGetShelf(ctx context.Context, input *GetShelfInput) (*ShelfOutput, error) {
	view, err := s.service.ShelfView(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &ShelfOutput{Body: view}, nil
}

func (s *Server) handleRefreshShelf(ctx context.Context, input *GetShelfInput) (*ShelfOutput, error) {
	if err := s.service.Refresh(ctx, input.ID); err != nil {
		return nil, apiError(err)
	}
	view, err := s.service.ShelfView(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &ShelfOutput{Body: view}, nil
}

func (s *Server) handleCreateShelf(ctx context.Context, input *CreateShelfInput) (*ShelfOutput, error) {
	view, err := s.service.CreateShelf(ctx, service.CreateShelfInput{
		OwnerID:     input.ViewerID,
		Title:       input.Body.Title,
		Description: input.Body.Description,
		Tags:        input.Body.Tags,
		Items:       input.Body.Items,
	})
	if err != nil {
		return nil, apiError(err)
	}
	return &ShelfOutput{Body: view}, nil
}

func (s *Server) handleAddItems(ctx context.Context, input *AddItemsInput) (*ShelfOutput, error) {
	view, err := s.service.AddItems(ctx, input.ID, input.ViewerID, input.Body.Items)
	if err != nil {
		return nil, apiError(err)
	}
	return &ShelfOutput{Body: view}, nil
}
