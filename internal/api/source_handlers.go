package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/shelfcache/internal/domain"
	"github.com/listenupapp/shelfcache/internal/service"
)

func (s *Server) registerSourceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getSource",
		Method:      http.MethodGet,
		Path:        "/api/v1/sources/{kind}",
		Summary:     "Get source",
		Description: "Returns what has been accumulated for a paginated source without fetching",
		Tags:        []string{"Sources"},
	}, s.handleGetSource)

	huma.Register(s.api, huma.Operation{
		OperationID: "loadMoreSource",
		Method:      http.MethodPost,
		Path:        "/api/v1/sources/{kind}/more",
		Summary:     "Load more",
		Description: "Fetches the next page of a source. An exhausted source returns its accumulated list without contacting the origin.",
		Tags:        []string{"Sources"},
	}, s.handleLoadMoreSource)
}

// SourceInput identifies a paginated source.
type SourceInput struct {
	Kind string `path:"kind" enum:"popular_tags,tag_search,shelves_by_tag,feed,owned_shelves" doc:"Query kind"`
	Key  string `query:"key" doc:"Tag, prefix, feed name or owner ID depending on the kind"`
}

// SourceOutput wraps a source view for Huma.
type SourceOutput struct {
	Body service.SourceView
}

func (s *Server) handleGetSource(_ context.Context, input *SourceInput) (*SourceOutput, error) {
	view, err := s.service.Source(domain.QueryKind(input.Kind), input.Key)
	if err != nil {
		return nil, apiError(err)
	}
	return &SourceOutput{Body: view}, nil
}

func (s *Server) handleLoadMoreSource(ctx context.Context, input *SourceInput) (*SourceOutput, error) {
	view, err := s.service.LoadMore(ctx, domain.QueryKind(input.Kind), input.Key)
	if err != nil {
		return nil, apiError(err)
	}
	return &SourceOutput{Body: view}, nil
}
