package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/listenupapp/shelfcache/internal/api"
	"github.com/listenupapp/shelfcache/internal/config"
	"github.com/listenupapp/shelfcache/internal/feed"
	"github.com/listenupapp/shelfcache/internal/logger"
	"github.com/listenupapp/shelfcache/internal/pagination"
	"github.com/listenupapp/shelfcache/internal/reorder"
	"github.com/listenupapp/shelfcache/internal/service"
	"github.com/listenupapp/shelfcache/internal/sse"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Component("sse"))

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// ProvideShelfService provides the shelf service and subscribes it to origin changes.
func ProvideShelfService(i do.Injector) (*service.ShelfService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	backend := do.MustInvoke[*BackendHandle](i)
	store := do.MustInvoke[*CacheHandle](i)
	res := do.MustInvoke[*ResolverHandle](i)
	engine := do.MustInvoke[*reorder.Engine](i)
	pages := do.MustInvoke[*pagination.Manager](i)
	feeds := do.MustInvoke[*feed.Aggregator](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	origin := do.MustInvoke[*OriginHandle](i)

	svc := service.NewShelfService(
		backend.Backend,
		store.Store,
		res.Resolver,
		engine,
		pages,
		feeds,
		sseHandle.Manager,
		log.Logger,
	)
	svc.SetResolveDepth(cfg.Cache.ResolveDepth)

	if origin.Store != nil {
		origin.SetEventEmitter(svc)
	}

	return svc, nil
}

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	handler *api.Server
	timeout time.Duration
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	defer h.handler.Close()
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	origin := do.MustInvoke[*OriginHandle](i)
	svc := do.MustInvoke[*service.ShelfService](i)

	handler := api.NewServer(svc, sseHandle.Manager, api.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		Origin:      origin.Store,
	}, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = shutdownTimeout
	}
	return &HTTPServerHandle{Server: srv, handler: handler, timeout: timeout}, nil
}
