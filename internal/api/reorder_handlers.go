package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/shelfcache/internal/domain"
)

// Move positions.
const (
	PositionBefore = "before"
	PositionAfter  = "after"
)

func (s *Server) registerReorderRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getReorderStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/shelves/{id}/reorder",
		Summary:     "Get reorder status",
		Description: "Returns the shelf's pending order and reorder state without side effects",
		Tags:        []string{"Reorder"},
	}, s.handleReorderStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "beginEdit",
		Method:      http.MethodPost,
		Path:        "/api/v1/shelves/{id}/edit",
		Summary:     "Begin reorder",
		Description: "Starts a reorder session seeded with the committed order (owner only)",
		Tags:        []string{"Reorder"},
	}, s.handleBeginEdit)

	huma.Register(s.api, huma.Operation{
		OperationID: "moveItem",
		Method:      http.MethodPost,
		Path:        "/api/v1/shelves/{id}/move",
		Summary:     "Move item",
		Description: "Moves an item immediately before or after another item in the pending order",
		Tags:        []string{"Reorder"},
	}, s.handleMoveItem)

	huma.Register(s.api, huma.Operation{
		OperationID: "saveOrder",
		Method:      http.MethodPost,
		Path:        "/api/v1/shelves/{id}/save",
		Summary:     "Save order",
		Description: "Commits the pending order to the origin. On failure the pending order is kept so the save can be retried or cancelled.",
		Tags:        []string{"Reorder"},
	}, s.handleSaveOrder)

	huma.Register(s.api, huma.Operation{
		OperationID: "cancelEdit",
		Method:      http.MethodDelete,
		Path:        "/api/v1/shelves/{id}/edit",
		Summary:     "Cancel reorder",
		Description: "Discards the pending order without contacting the origin",
		Tags:        []string{"Reorder"},
	}, s.handleCancelEdit)
}

// === DTOs ===

// ReorderInput identifies a shelf for reorder operations.
type ReorderInput struct {
	ID string `path:"id" doc:"Shelf ID"`
}

// BeginEditInput identifies the shelf and the editing viewer.
type BeginEditInput struct {
	ID       string `path:"id" doc:"Shelf ID"`
	ViewerID string `header:"X-Viewer-ID" doc:"Viewer; must own the shelf when given"`
}

// MoveItemRequest is the request body for moving an item.
type MoveItemRequest struct {
	ItemKey      int    `json:"item_key" doc:"Key of the item to move"`
	ReferenceKey int    `json:"reference_key" doc:"Key of the item to move next to"`
	Position     string `json:"position" enum:"before,after" doc:"Place the item before or after the reference"`
}

// MoveItemInput wraps the move request for Huma.
type MoveItemInput struct {
	ID   string `path:"id" doc:"Shelf ID"`
	Body MoveItemRequest
}

// ReorderOutput wraps the reorder state for Huma.
type ReorderOutput struct {
	Body domain.PendingReorder
}

// === Handlers ===

func (s *Server) handleReorderStatus(_ context.Context, input *ReorderInput) (*ReorderOutput, error) {
	return &ReorderOutput{Body: s.service.ReorderStatus(input.ID)}, nil
}

func (s *Server) handleBeginEdit(ctx context.Context, input *BeginEditInput) (*ReorderOutput, error) {
	p, err := s.service.BeginEdit(ctx, input.ID, input.ViewerID)
	if err != nil {
		return nil, apiError(err)
	}
	return &ReorderOutput{Body: p}, nil
}

func (s *Server) handleMoveItem(_ context.Context, input *MoveItemInput) (*ReorderOutput, error) {
	before := input.Body.Position == PositionBefore
	p, err := s.service.MoveItem(input.ID, input.Body.ItemKey, input.Body.ReferenceKey, before)
	if err != nil {
		return nil, apiError(err)
	}
	return &ReorderOutput{Body: p}, nil
}

func (s *Server) handleSaveOrder(ctx context.Context, input *ReorderInput) (*ReorderOutput, error) {
	p, err := s.service.SaveOrder(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &ReorderOutput{Body: p}, nil
}

func (s *Server) handleCancelEdit(_ context.Context, input *ReorderInput) (*ReorderOutput, error) {
	p, err := s.service.CancelEdit(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &ReorderOutput{Body: p}, nil
}
