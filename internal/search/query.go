package search

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/listenupapp/shelfcache/internal/normalize"
)

// MaxResults caps a single prefix search.
const MaxResults = 200

// SearchPrefix returns tag slugs whose slug or any word starts with prefix, in slug
// order, resuming strictly after the slug `after`. An empty prefix lists every tag.
func (s *TagIndex) SearchPrefix(ctx context.Context, prefix, after string, limit int) ([]string, error) {
	if limit <= 0 || limit > MaxResults {
		limit = MaxResults
	}

	req := bleve.NewSearchRequestOptions(buildPrefixQuery(prefix), limit, 0, false)
	req.SortBy([]string{"_id"})
	if after != "" {
		req.SearchAfter = []string{after}
	}

	s.mu.RLock()
	res, err := s.index.SearchInContext(ctx, req)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("prefix search %q: %w", prefix, err)
	}

	slugs := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		slugs = append(slugs, hit.ID)
	}

	s.logger.Debug("tag prefix search",
		"prefix", prefix,
		"after", after,
		"hits", len(slugs),
		"total", res.Total,
	)
	return slugs, nil
}

func buildPrefixQuery(raw string) query.Query {
	prefix := normalize.TagSlug(raw)
	if prefix == "" {
		return bleve.NewMatchAllQuery()
	}

	slugQuery := bleve.NewPrefixQuery(prefix)
	slugQuery.SetField("slug")

	wordQuery := bleve.NewPrefixQuery(prefix)
	wordQuery.SetField("words")

	return bleve.NewDisjunctionQuery(slugQuery, wordQuery)
}
