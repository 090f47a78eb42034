package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/shelfcache/internal/cache"
	"github.com/listenupapp/shelfcache/internal/config"
	"github.com/listenupapp/shelfcache/internal/feed"
	"github.com/listenupapp/shelfcache/internal/logger"
	"github.com/listenupapp/shelfcache/internal/pagination"
	"github.com/listenupapp/shelfcache/internal/reorder"
	"github.com/listenupapp/shelfcache/internal/resolver"
)

// CacheHandle wraps the normalized store and its optional evictor.
type CacheHandle struct {
	*cache.Store
	evictor *cache.Evictor
}

// Shutdown implements do.Shutdownable.
func (h *CacheHandle) Shutdown() error {
	if h.evictor != nil {
		h.evictor.Detach()
	}
	return nil
}

// ProvideCache provides the normalized store, bounded when an eviction capacity is set.
func ProvideCache(i do.Injector) (*CacheHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	h := &CacheHandle{Store: cache.New(log.Component("cache"))}
	if cfg.Cache.EvictCapacity > 0 {
		evictor, err := cache.NewEvictor(h.Store, cfg.Cache.EvictCapacity, log.Component("evictor"))
		if err != nil {
			return nil, err
		}
		h.evictor = evictor
		log.Info("Cache eviction enabled", "capacity", cfg.Cache.EvictCapacity)
	}
	return h, nil
}

// ResolverHandle waits for in-flight reference fetches on shutdown.
type ResolverHandle struct {
	*resolver.Resolver
}

// Shutdown implements do.Shutdownable.
func (h *ResolverHandle) Shutdown() error {
	h.Wait()
	return nil
}

// ProvideResolver provides the nested reference resolver.
func ProvideResolver(i do.Injector) (*ResolverHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	backend := do.MustInvoke[*BackendHandle](i)
	store := do.MustInvoke[*CacheHandle](i)

	r := resolver.New(backend.Backend, store.Store, log.Component("resolver"))
	r.SetFetchTimeout(cfg.Cache.FetchTimeout)
	return &ResolverHandle{Resolver: r}, nil
}

// ProvideReorderEngine provides the optimistic reorder engine.
func ProvideReorderEngine(i do.Injector) (*reorder.Engine, error) {
	log := do.MustInvoke[*logger.Logger](i)
	backend := do.MustInvoke[*BackendHandle](i)
	store := do.MustInvoke[*CacheHandle](i)

	return reorder.New(backend.Backend, store.Store, log.Component("reorder")), nil
}

// ProvidePagination provides the cursor pagination manager.
func ProvidePagination(i do.Injector) (*pagination.Manager, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	backend := do.MustInvoke[*BackendHandle](i)
	store := do.MustInvoke[*CacheHandle](i)

	return pagination.New(backend.Backend, store.Store,
		pagination.WithPageSize(cfg.Cache.PageSize),
		pagination.WithLogger(log.Component("pagination")),
	), nil
}

// ProvideFeedAggregator provides the feed aggregator.
func ProvideFeedAggregator(i do.Injector) (*feed.Aggregator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	pages := do.MustInvoke[*pagination.Manager](i)

	return feed.New(pages, cfg.Cache.FeedMemoSize, log.Component("feed"))
}
