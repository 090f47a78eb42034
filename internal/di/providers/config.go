// Package providers contains dependency injection providers for shelfd.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/shelfcache/internal/config"
	"github.com/listenupapp/shelfcache/internal/logger"
)

// ConfigProvider returns a provider that loads configuration from args.
// args excludes the program name.
func ConfigProvider(args []string) func(do.Injector) (*config.Config, error) {
	return func(do.Injector) (*config.Config, error) {
		return config.LoadConfig(args)
	}
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting shelfd",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"backend", cfg.Backend.Mode,
		"page_size", cfg.Cache.PageSize,
	)

	return log, nil
}
