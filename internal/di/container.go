// Package di provides dependency injection configuration for shelfd.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/shelfcache/internal/config"
	"github.com/listenupapp/shelfcache/internal/di/providers"
	"github.com/listenupapp/shelfcache/internal/feed"
	"github.com/listenupapp/shelfcache/internal/logger"
	"github.com/listenupapp/shelfcache/internal/pagination"
	"github.com/listenupapp/shelfcache/internal/reorder"
	"github.com/listenupapp/shelfcache/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
// args are the command-line arguments without the program name.
func NewContainer(args []string) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ConfigProvider(args))
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSSEManager)

	// Origin
	do.Provide(injector, providers.ProvideTagIndex)
	do.Provide(injector, providers.ProvideOrigin)
	do.Provide(injector, providers.ProvideBackend)

	// Cache components
	do.Provide(injector, providers.ProvideCache)
	do.Provide(injector, providers.ProvideResolver)
	do.Provide(injector, providers.ProvideReorderEngine)
	do.Provide(injector, providers.ProvidePagination)
	do.Provide(injector, providers.ProvideFeedAggregator)

	// Service and server
	do.Provide(injector, providers.ProvideShelfService)
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services in dependency order and starts the HTTP server.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)

	if _, err := do.Invoke[*providers.OriginHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.BackendHandle](injector); err != nil {
		return err
	}

	_ = do.MustInvoke[*providers.CacheHandle](injector)
	_ = do.MustInvoke[*providers.ResolverHandle](injector)
	_ = do.MustInvoke[*reorder.Engine](injector)
	_ = do.MustInvoke[*pagination.Manager](injector)
	_ = do.MustInvoke[*feed.Aggregator](injector)
	_ = do.MustInvoke[*service.ShelfService](injector)

	_, err := do.Invoke[*providers.HTTPServerHandle](injector)
	return err
}
