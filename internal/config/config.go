// Package config loads shelfcache configuration from a YAML or .env file,
// environment variables and command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/listenupapp/shelfcache/internal/logger"
)

// Backend modes.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config holds all application configuration.
type Config struct {
	App     AppConfig     `yaml:"app"`
	Logger  LoggerConfig  `yaml:"logger"`
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Cache   CacheConfig   `yaml:"cache"`
	Flaky   FlakyConfig   `yaml:"flaky"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `yaml:"environment" env:"ENV" env-default:"development"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"0s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	CORSOrigins     []string      `yaml:"cors_origins"     env:"CORS_ORIGINS"            env-default:"*"`
}

// BackendConfig selects and configures the origin the cache reads through.
// In local mode the origin is an embedded badger store; DataPath empty keeps
// it in memory. In remote mode BaseURL points at another shelfd's origin routes.
type BackendConfig struct {
	Mode      string        `yaml:"mode"       env:"BACKEND_MODE"       env-default:"local"`
	BaseURL   string        `yaml:"base_url"   env:"BACKEND_BASE_URL"`
	Timeout   time.Duration `yaml:"timeout"    env:"BACKEND_TIMEOUT"    env-default:"15s"`
	RateLimit float64       `yaml:"rate_limit" env:"BACKEND_RATE_LIMIT" env-default:"20"`
	Burst     int           `yaml:"burst"      env:"BACKEND_BURST"      env-default:"10"`
	DataPath  string        `yaml:"data_path"  env:"DATA_PATH"`
	IndexPath string        `yaml:"index_path" env:"INDEX_PATH"`
}

// CacheConfig tunes the client-side cache.
type CacheConfig struct {
	PageSize      int           `yaml:"page_size"       env:"CACHE_PAGE_SIZE"       env-default:"20"`
	EvictCapacity int           `yaml:"evict_capacity"  env:"CACHE_EVICT_CAPACITY"  env-default:"0"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"   env:"CACHE_FETCH_TIMEOUT"   env-default:"30s"`
	FeedMemoSize  int           `yaml:"feed_memo_size"  env:"CACHE_FEED_MEMO_SIZE"  env-default:"128"`
	ResolveDepth  int           `yaml:"resolve_depth"   env:"CACHE_RESOLVE_DEPTH"   env-default:"1"`
}

// FlakyConfig injects latency and failures in front of the origin.
// Zero values disable injection.
type FlakyConfig struct {
	Latency     time.Duration `yaml:"latency"      env:"FLAKY_LATENCY"      env-default:"0s"`
	FailureRate float64       `yaml:"failure_rate" env:"FLAKY_FAILURE_RATE" env-default:"0"`
}

// Enabled reports whether any injection is configured.
func (f FlakyConfig) Enabled() bool {
	return f.Latency > 0 || f.FailureRate > 0
}

// DefaultConfigPath is read when -config is not given.
const DefaultConfigPath = "config.yaml"

// MaxPageSize is the largest page an origin serves.
const MaxPageSize = 100

// LoadConfig loads configuration with precedence flags > env > file > defaults.
// args excludes the program name. A missing file is an error only when
// -config is passed explicitly.
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("shelfd", flag.ContinueOnError)

	configPath := fs.String("config", DefaultConfigPath, "Path to a YAML or .env config file")
	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "Log format (json, pretty)")
	port := fs.String("port", "", "Server port (default: 8080)")
	backendMode := fs.String("backend", "", "Backend mode (local, remote)")
	baseURL := fs.String("backend-url", "", "Origin base URL for remote mode")
	dataPath := fs.String("data-path", "", "Badger data directory for local mode (empty: in memory)")
	indexPath := fs.String("index-path", "", "Tag search index directory (empty: in memory)")
	pageSize := fs.Int("page-size", 0, "Entries fetched per page")
	flakyLatency := fs.Duration("flaky-latency", 0, "Injected origin latency")
	flakyFailure := fs.Float64("flaky-failure-rate", 0, "Injected origin failure rate (0-1)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	explicit := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})

	cfg := &Config{}
	if err := readConfig(*configPath, explicit, cfg); err != nil {
		return nil, err
	}

	// Only flags that were set override lower layers.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "env":
			cfg.App.Environment = *env
		case "log-level":
			cfg.Logger.Level = *logLevel
		case "log-format":
			cfg.Logger.Format = *logFormat
		case "port":
			cfg.Server.Port = *port
		case "backend":
			cfg.Backend.Mode = *backendMode
		case "backend-url":
			cfg.Backend.BaseURL = *baseURL
		case "data-path":
			cfg.Backend.DataPath = *dataPath
		case "index-path":
			cfg.Backend.IndexPath = *indexPath
		case "page-size":
			cfg.Cache.PageSize = *pageSize
		case "flaky-latency":
			cfg.Flaky.Latency = *flakyLatency
		case "flaky-failure-rate":
			cfg.Flaky.FailureRate = *flakyFailure
		}
	})

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func readConfig(path string, explicit bool, cfg *Config) error {
	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	case explicit:
		return fmt.Errorf("config file %s: %w", path, statErr)
	default:
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return fmt.Errorf("read env: %w", err)
		}
	}
	return nil
}

// Validate checks that all config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	if !logger.ValidLevel(c.Logger.Level) {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch strings.ToLower(c.Logger.Format) {
	case "", logger.FormatJSON, logger.FormatPretty:
	default:
		return fmt.Errorf("invalid log format: %s (must be json or pretty)", c.Logger.Format)
	}

	switch c.Backend.Mode {
	case BackendLocal:
	case BackendRemote:
		if c.Backend.BaseURL == "" {
			return errors.New("BACKEND_BASE_URL is required in remote mode")
		}
	default:
		return fmt.Errorf("invalid backend mode: %s (must be local or remote)", c.Backend.Mode)
	}

	if c.Cache.PageSize <= 0 || c.Cache.PageSize > MaxPageSize {
		return fmt.Errorf("page size must be between 1 and %d, got %d", MaxPageSize, c.Cache.PageSize)
	}
	if c.Cache.EvictCapacity < 0 {
		return fmt.Errorf("evict capacity must not be negative, got %d", c.Cache.EvictCapacity)
	}
	if c.Cache.ResolveDepth < 1 {
		return fmt.Errorf("resolve depth must be at least 1, got %d", c.Cache.ResolveDepth)
	}
	if c.Flaky.FailureRate < 0 || c.Flaky.FailureRate > 1 {
		return fmt.Errorf("flaky failure rate must be between 0 and 1, got %v", c.Flaky.FailureRate)
	}

	return nil
}

func (c *Config) expandPaths() error {
	var err error
	if c.Backend.DataPath, err = expandPath(c.Backend.DataPath); err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}
	if c.Backend.IndexPath, err = expandPath(c.Backend.IndexPath); err != nil {
		return fmt.Errorf("invalid index path: %w", err)
	}
	return nil
}

// expandPath expands ~ and makes the path absolute. Empty stays empty.
func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}
