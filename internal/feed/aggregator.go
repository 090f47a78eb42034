// Package feed merges several paginated result streams into one ordered view.
package feed

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/listenupapp/shelfcache/internal/domain"
	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
	"github.com/listenupapp/shelfcache/internal/pagination"
)

const defaultMemoSize = 128

// Modes lists the feed modes in display order.
var Modes = []string{domain.FeedRecency, domain.FeedRandom, domain.FeedStoryline}

// View is the merged, duplicate-free list for one mode.
type View struct {
	Mode      string            `json:"mode"`
	IDs       []string          `json:"ids"`
	Sources   []domain.QueryKey `json:"sources"`
	Exhausted bool              `json:"exhausted"`
	Loading   bool              `json:"loading"`
}

// Aggregator builds feed views from the Pagination Manager's accumulated lists.
type Aggregator struct {
	pages  *pagination.Manager
	memo   *lru.Cache[string, []string]
	logger *slog.Logger
}

// New creates an Aggregator. memoSize <= 0 uses a small default.
func New(pages *pagination.Manager, memoSize int, logger *slog.Logger) (*Aggregator, error) {
	if memoSize <= 0 {
		memoSize = defaultMemoSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	memo, err := lru.New[string, []string](memoSize)
	if err != nil {
		return nil, err
	}
	return &Aggregator{pages: pages, memo: memo, logger: logger}, nil
}

// Sources returns the query keys a mode merges, highest priority first.
// The recency feed puts the viewer's own shelves ahead of the public stream.
func Sources(mode, viewerID string) ([]domain.QueryKey, error) {
	feed := func(name string) domain.QueryKey {
		return domain.QueryKey{Kind: domain.KindFeed, Key: name}
	}
	switch mode {
	case domain.FeedRecency:
		if viewerID == "" {
			return []domain.QueryKey{feed(domain.FeedRecency)}, nil
		}
		if strings.ContainsRune(viewerID, ':') {
			return nil, domainerrors.Validationf("viewer id %q must not contain ':'", viewerID)
		}
		return []domain.QueryKey{
			{Kind: domain.KindOwnedShelves, Key: viewerID},
			feed(domain.FeedRecency),
		}, nil
	case domain.FeedRandom, domain.FeedStoryline:
		return []domain.QueryKey{feed(mode)}, nil
	default:
		return nil, domainerrors.Validationf("unknown feed mode %q", mode)
	}
}

// CombinedView concatenates the accumulated IDs of sources in priority order,
// keeping only the first occurrence of each ID.
func (a *Aggregator) CombinedView(sources []domain.QueryKey) []string {
	memoKey := a.memoKey(sources)
	if ids, ok := a.memo.Get(memoKey); ok {
		return append([]string(nil), ids...)
	}

	lists := make([][]string, len(sources))
	for i, src := range sources {
		lists[i] = a.pages.Accumulated(src)
	}
	ids := Merge(lists...)

	a.memo.Add(memoKey, ids)
	return append([]string(nil), ids...)
}

// ModeView returns the merged view for a feed mode without fetching.
func (a *Aggregator) ModeView(mode, viewerID string) (View, error) {
	sources, err := Sources(mode, viewerID)
	if err != nil {
		return View{}, err
	}
	return a.view(mode, sources), nil
}

// LoadMore fetches the next page of every non-exhausted source of mode concurrently.
// A failing source does not cancel the others; the first error is returned together
// with the view over whatever did arrive.
func (a *Aggregator) LoadMore(ctx context.Context, mode, viewerID string) (View, error) {
	sources, err := Sources(mode, viewerID)
	if err != nil {
		return View{}, err
	}

	var g errgroup.Group
	for _, src := range sources {
		if a.pages.State(src).Exhausted {
			continue
		}
		g.Go(func() error {
			_, err := a.pages.LoadMore(ctx, src)
			return err
		})
	}
	err = g.Wait()
	if err != nil {
		a.logger.Warn("feed load failed", "mode", mode, "error", err)
	}
	return a.view(mode, sources), err
}

func (a *Aggregator) view(mode string, sources []domain.QueryKey) View {
	v := View{
		Mode:      mode,
		IDs:       a.CombinedView(sources),
		Sources:   sources,
		Exhausted: true,
	}
	for _, src := range sources {
		st := a.pages.State(src)
		v.Exhausted = v.Exhausted && st.Exhausted
		v.Loading = v.Loading || st.Loading
	}
	return v
}

func (a *Aggregator) memoKey(sources []domain.QueryKey) string {
	var b strings.Builder
	for _, src := range sources {
		b.WriteString(src.String())
		b.WriteByte('|')
	}
	b.WriteString(strconv.FormatUint(a.pages.Version(), 10))
	return b.String()
}

// Merge concatenates lists in order, dropping IDs already seen.
func Merge(lists ...[]string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, list := range lists {
		for _, id := range list {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
