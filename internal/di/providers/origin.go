package providers

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/listenupapp/shelfcache/internal/config"
	"github.com/listenupapp/shelfcache/internal/logger"
	"github.com/listenupapp/shelfcache/internal/remote"
	"github.com/listenupapp/shelfcache/internal/search"
	"github.com/listenupapp/shelfcache/internal/store"
)

// TagIndexHandle wraps the tag index with shutdown capability.
// Index is nil in remote mode.
type TagIndexHandle struct {
	*search.TagIndex
}

// Shutdown implements do.Shutdownable.
func (h *TagIndexHandle) Shutdown() error {
	if h.TagIndex == nil {
		return nil
	}
	return h.Close()
}

// ProvideTagIndex provides the bleve index behind tag search.
func ProvideTagIndex(i do.Injector) (*TagIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.Backend.Mode != config.BackendLocal {
		return &TagIndexHandle{}, nil
	}
	log := do.MustInvoke[*logger.Logger](i)

	index, err := search.NewTagIndex(search.Options{
		DataPath: cfg.Backend.IndexPath,
		Logger:   log.Component("search"),
	})
	if err != nil {
		return nil, fmt.Errorf("open tag index: %w", err)
	}
	return &TagIndexHandle{TagIndex: index}, nil
}

// OriginHandle wraps the embedded origin store. Store is nil in remote mode.
type OriginHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *OriginHandle) Shutdown() error {
	if h.Store == nil {
		return nil
	}
	return h.Close()
}

// ProvideOrigin opens the embedded badger origin in local mode.
func ProvideOrigin(i do.Injector) (*OriginHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.Backend.Mode != config.BackendLocal {
		return &OriginHandle{}, nil
	}
	log := do.MustInvoke[*logger.Logger](i)
	indexHandle := do.MustInvoke[*TagIndexHandle](i)

	db, err := store.New(cfg.Backend.DataPath, log.Component("origin"), nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := db.SetTagIndexer(ctx, indexHandle.TagIndex); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("populate tag index: %w", err)
	}

	path := cfg.Backend.DataPath
	if path == "" {
		path = "(memory)"
	}
	log.Info("Origin store initialized", "path", path)

	return &OriginHandle{Store: db}, nil
}

// BackendHandle is the origin as the cache sees it, with any fault injection applied.
type BackendHandle struct {
	remote.Backend
	client *remote.Client
	flaky  *store.Flaky
}

// Flaky returns the fault injector, or nil when injection is off.
func (h *BackendHandle) Flaky() *store.Flaky {
	return h.flaky
}

// Shutdown implements do.Shutdownable.
func (h *BackendHandle) Shutdown() error {
	if h.client != nil {
		h.client.Close()
	}
	return nil
}

// ProvideBackend selects the embedded origin or an HTTP client for a remote one.
func ProvideBackend(i do.Injector) (*BackendHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	h := &BackendHandle{}
	switch cfg.Backend.Mode {
	case config.BackendLocal:
		h.Backend = do.MustInvoke[*OriginHandle](i).Store
	case config.BackendRemote:
		client, err := remote.NewClient(remote.ClientConfig{
			BaseURL:   cfg.Backend.BaseURL,
			Timeout:   cfg.Backend.Timeout,
			RateLimit: cfg.Backend.RateLimit,
			Burst:     cfg.Backend.Burst,
		}, log.Component("remote"))
		if err != nil {
			return nil, err
		}
		h.Backend = client
		h.client = client
		log.Info("Using remote origin", "base_url", cfg.Backend.BaseURL)
	default:
		return nil, fmt.Errorf("unknown backend mode %q", cfg.Backend.Mode)
	}

	if cfg.Flaky.Enabled() {
		h.flaky = store.NewFlaky(h.Backend, store.FlakyOptions{
			Latency:     cfg.Flaky.Latency,
			FailureRate: cfg.Flaky.FailureRate,
		})
		h.Backend = h.flaky
		log.Warn("Origin fault injection enabled",
			"latency", cfg.Flaky.Latency,
			"failure_rate", cfg.Flaky.FailureRate,
		)
	}

	return h, nil
}
