// Package api provides the HTTP surface of shelfcache: the view API served
// from the cache and, when the origin is embedded, the origin routes the
// remote client talks to.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/listenupapp/shelfcache/internal/service"
	"github.com/listenupapp/shelfcache/internal/sse"
	"github.com/listenupapp/shelfcache/internal/store"
)

// Options configures optional parts of the server.
type Options struct {
	// CORSOrigins lists allowed browser origins. Empty disables CORS headers.
	CORSOrigins []string

	// Origin exposes the embedded store under /origin/v1 when set.
	Origin *store.Store

	// OriginWriteRate limits origin writes per client IP, in requests per minute.
	OriginWriteRate int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	service     *service.ShelfService
	origin      *store.Store
	sseManager  *sse.Manager
	sseHandler  *sse.Handler
	router      *chi.Mux
	api         huma.API
	logger      *slog.Logger
	writeLimits *RateLimiter
	startedAt   time.Time
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(svc *service.ShelfService, sseManager *sse.Manager, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	router := chi.NewRouter()

	s := &Server{
		service:    svc,
		origin:     opts.Origin,
		sseManager: sseManager,
		router:     router,
		logger:     logger,
		startedAt:  time.Now(),
	}
	if sseManager != nil {
		s.sseHandler = sse.NewHandler(sseManager, logger)
	}
	if opts.Origin != nil {
		rate := opts.OriginWriteRate
		if rate <= 0 {
			rate = defaultOriginWriteRate
		}
		s.writeLimits = NewRateLimiter(rate, time.Minute, rate/2+1)
	}

	s.setupMiddleware(opts.CORSOrigins)

	humaConfig := huma.DefaultConfig("shelfcache API", "1.0.0")
	humaConfig.Info.Description = "Normalized shelf cache with optimistic reordering and merged feeds."
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	if s.writeLimits != nil {
		s.writeLimits.Stop()
	}
}

func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)

	if len(origins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", ViewerHeader, "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerShelfRoutes()
	s.registerReorderRoutes()
	s.registerSourceRoutes()
	s.registerFeedRoutes()

	// Event streams are plain chi handlers.
	if s.sseHandler != nil {
		s.router.Get("/api/v1/events", s.sseHandler.ServeHTTP)
	}

	if s.origin != nil {
		s.router.Route("/origin/v1", s.registerOriginRoutes)
	}
}
