package api

import (
	"encoding/json/v2"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/listenupapp/shelfcache/internal/domain"
	"github.com/listenupapp/shelfcache/internal/http/response"
	"github.com/listenupapp/shelfcache/internal/remote"
	"github.com/listenupapp/shelfcache/internal/validation"
)

// maxOriginBody bounds origin request bodies.
const maxOriginBody = 1 << 20

var originValidator = validation.New()

// registerOriginRoutes serves the embedded store with the contract
// remote.Client expects, so one shelfd can act as another's origin.
func (s *Server) registerOriginRoutes(r chi.Router) {
	r.Get("/shelves/{id}", s.handleOriginGetShelf)
	r.Get("/pages/{kind}", s.handleOriginPage)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(s.writeLimits, s.logger))
		r.Put("/shelves/{id}", s.handleOriginPutShelf)
		r.Delete("/shelves/{id}", s.handleOriginDeleteShelf)
		r.Post("/shelves/{id}/items", s.handleOriginAppendItems)
		r.Put("/shelves/{id}/order", s.handleOriginCommitOrder)
	})
}

func (s *Server) handleOriginGetShelf(w http.ResponseWriter, r *http.Request) {
	shelf, err := s.origin.FetchShelf(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, shelf, s.logger)
}

func (s *Server) handleOriginPage(w http.ResponseWriter, r *http.Request) {
	kind := domain.QueryKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		response.BadRequest(w, "unknown query kind "+string(kind), s.logger)
		return
	}

	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxOriginPageLimit {
			response.BadRequest(w, "limit must be between 0 and "+strconv.Itoa(maxOriginPageLimit), s.logger)
			return
		}
		limit = n
	}

	page, err := s.origin.FetchPage(r.Context(), kind, q.Get("key"), q.Get("cursor"), limit)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, page, s.logger)
}

func (s *Server) handleOriginPutShelf(w http.ResponseWriter, r *http.Request) {
	var shelf domain.Shelf
	if !s.decodeOriginBody(w, r, &shelf) {
		return
	}
	id := chi.URLParam(r, "id")
	if shelf.ID == "" {
		shelf.ID = id
	}
	if shelf.ID != id {
		response.BadRequest(w, "shelf id does not match the path", s.logger)
		return
	}

	if err := s.origin.PutShelf(r.Context(), &shelf); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	stored, err := s.origin.FetchShelf(r.Context(), id)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	s.logger.Debug("origin shelf written", "shelf_id", id, "request_id", r.Header.Get(remote.RequestIDHeader))
	response.Success(w, stored, s.logger)
}

func (s *Server) handleOriginDeleteShelf(w http.ResponseWriter, r *http.Request) {
	if err := s.origin.DeleteShelf(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.NoContent(w)
}

func (s *Server) handleOriginAppendItems(w http.ResponseWriter, r *http.Request) {
	var req remote.AppendRequest
	if !s.decodeOriginBody(w, r, &req) {
		return
	}
	for i, it := range req.Items {
		if err := it.Content.Validate(); err != nil {
			response.BadRequest(w, "item "+strconv.Itoa(i)+": "+err.Error(), s.logger)
			return
		}
	}

	shelf, err := s.origin.AppendItems(r.Context(), chi.URLParam(r, "id"), req.Items)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, shelf, s.logger)
}

func (s *Server) handleOriginCommitOrder(w http.ResponseWriter, r *http.Request) {
	var req remote.CommitRequest
	if !s.decodeOriginBody(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.origin.CommitReorder(r.Context(), id, req.Order); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	s.logger.Debug("origin order committed", "shelf_id", id, "request_id", r.Header.Get(remote.RequestIDHeader))
	response.NoContent(w)
}

// decodeOriginBody reads and validates a JSON body. It writes the error
// response itself and reports whether the handler should continue.
func (s *Server) decodeOriginBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxOriginBody)
	if err := json.UnmarshalRead(r.Body, dest); err != nil {
		response.BadRequest(w, "invalid JSON body", s.logger)
		return false
	}
	if err := originValidator.Validate(dest); err != nil {
		response.HandleError(w, err, s.logger)
		return false
	}
	return true
}
