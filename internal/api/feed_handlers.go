package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/shelfcache/internal/service"
)

func (s *Server) registerFeedRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getFeed",
		Method:      http.MethodGet,
		Path:        "/api/v1/feeds/{mode}",
		Summary:     "Get feed",
		Description: "Returns the merged, duplicate-free view of a feed mode without fetching",
		Tags:        []string{"Feeds"},
	}, s.handleGetFeed)

	huma.Register(s.api, huma.Operation{
		OperationID: "loadMoreFeed",
		Method:      http.MethodPost,
		Path:        "/api/v1/feeds/{mode}/more",
		Summary:     "Load more of a feed",
		Description: "Fetches the next page of every source behind the mode that is not exhausted",
		Tags:        []string{"Feeds"},
	}, s.handleLoadMoreFeed)
}

// FeedInput identifies a feed mode and its viewer.
type FeedInput struct {
	Mode     string `path:"mode" enum:"recency,random,storyline" doc:"Feed mode"`
	ViewerID string `header:"X-Viewer-ID" doc:"Viewer; the recency feed lists their own shelves first"`
}

// FeedOutput wraps a feed view for Huma.
type FeedOutput struct {
	Body service.FeedView
}

func (s *Server) handleGetFeed(_ context.Context, input *FeedInput) (*FeedOutput, error) {
	view, err := s.service.FeedView(input.Mode, input.ViewerID)
	if err != nil {
		return nil, apiError(err)
	}
	return &FeedOutput{Body: view}, nil
}

func (s *Server) handleLoadMoreFeed(ctx context.Context, input *FeedInput) (*FeedOutput, error) {
	view, err := s.service.LoadMoreFeed(ctx, input.Mode, input.ViewerID)
	if err != nil {
		return nil, apiError(err)
	}
	return &FeedOutput{Body: view}, nil
}
