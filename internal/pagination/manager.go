// Package pagination accumulates cursor-paginated backend query results per query key.
package pagination

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/listenupapp/shelfcache/internal/cache"
	"github.com/listenupapp/shelfcache/internal/domain"
	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
)

const (
	// DefaultPageSize is used when no page size is configured.
	DefaultPageSize = 20
	// MaxPageSize is the largest page an origin serves.
	MaxPageSize = 100
)

// PageFetcher is the backend boundary for paginated queries.
type PageFetcher interface {
	FetchPage(ctx context.Context, kind domain.QueryKind, key, cursor string, limit int) (*domain.Page, error)
}

// Result is a snapshot of one accumulated query.
type Result struct {
	Key        domain.QueryKey `json:"key"`
	IDs        []string        `json:"ids"`
	NextCursor string          `json:"next_cursor,omitempty"`
	Exhausted  bool            `json:"exhausted"`
	Loading    bool            `json:"loading"`
	LastError  string          `json:"last_error,omitempty"`
}

type result struct {
	lastErr   error
	seen      map[string]bool
	cursor    string
	ids       []string
	inflight  int
	exhausted bool
}

// Manager tracks accumulated results for each query key.
//
// Entities carried by a page are housed in the Store; the Manager itself keeps only
// ordered IDs. Concurrent identical requests share one backend call.
type Manager struct {
	backend  PageFetcher
	store    *cache.Store
	logger   *slog.Logger
	results  map[domain.QueryKey]*result
	onUpdate func(domain.QueryKey)
	group    singleflight.Group
	pageSize int
	version  uint64
	mu       sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithPageSize sets the page size used by LoadMore, capped at MaxPageSize.
func WithPageSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.pageSize = min(n, MaxPageSize)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Manager over backend that houses entities in store.
func New(backend PageFetcher, store *cache.Store, opts ...Option) *Manager {
	m := &Manager{
		backend:  backend,
		store:    store,
		logger:   slog.New(slog.DiscardHandler),
		results:  make(map[domain.QueryKey]*result),
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnUpdate registers a callback invoked after a query's accumulated state changes.
func (m *Manager) OnUpdate(fn func(domain.QueryKey)) {
	m.mu.Lock()
	m.onUpdate = fn
	m.mu.Unlock()
}

// PageSize returns the configured page size.
func (m *Manager) PageSize() int {
	return m.pageSize
}

// FetchPage requests one page of key starting at cursor and merges it into the
// accumulated list. IDs already present are skipped. The frontier cursor only moves
// when cursor is the current frontier, so re-fetching an older cursor never rewinds.
// Once a query is exhausted, FetchPage returns the accumulated result without calling
// the backend.
func (m *Manager) FetchPage(ctx context.Context, key domain.QueryKey, cursor string, limit int) (Result, error) {
	if !key.Kind.Valid() {
		return Result{}, domainerrors.Validationf("unknown query kind %q", key.Kind)
	}
	if limit <= 0 {
		limit = m.pageSize
	}
	limit = min(limit, MaxPageSize)

	m.mu.Lock()
	r := m.entry(key)
	if r.exhausted {
		out := m.snapshot(key, r)
		m.mu.Unlock()
		return out, nil
	}
	r.inflight++
	m.mu.Unlock()

	flightKey := key.String() + "|" + cursor + "|" + strconv.Itoa(limit)
	_, err, shared := m.group.Do(flightKey, func() (any, error) {
		return nil, m.fetch(ctx, key, cursor, limit)
	})

	m.mu.Lock()
	r.inflight--
	out := m.snapshot(key, r)
	m.mu.Unlock()

	if shared {
		m.logger.Debug("page request coalesced", "query", key.String(), "cursor", cursor)
	}
	return out, err
}

// LoadMore fetches the page after the current frontier using the configured page size.
func (m *Manager) LoadMore(ctx context.Context, key domain.QueryKey) (Result, error) {
	m.mu.Lock()
	cursor := m.entry(key).cursor
	m.mu.Unlock()
	return m.FetchPage(ctx, key, cursor, m.pageSize)
}

// Accumulated returns the IDs gathered so far for key, in server order.
func (m *Manager) Accumulated(key domain.QueryKey) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[key]
	if !ok {
		return nil
	}
	return slices.Clone(r.ids)
}

// State returns the accumulated result for key without fetching.
func (m *Manager) State(key domain.QueryKey) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[key]
	if !ok {
		return Result{Key: key, IDs: []string{}}
	}
	return m.snapshot(key, r)
}

// Reset discards everything accumulated for key.
func (m *Manager) Reset(key domain.QueryKey) {
	m.mu.Lock()
	delete(m.results, key)
	m.version++
	m.mu.Unlock()
}

// Version increments whenever any accumulated list changes.
func (m *Manager) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

func (m *Manager) fetch(ctx context.Context, key domain.QueryKey, cursor string, limit int) error {
	page, err := m.backend.FetchPage(ctx, key.Kind, key.Key, cursor, limit)
	if err != nil {
		m.mu.Lock()
		if r, ok := m.results[key]; ok {
			r.lastErr = err
		}
		m.mu.Unlock()

		m.logger.Warn("page fetch failed", "query", key.String(), "cursor", cursor, "error", err)
		if errors.Is(err, domainerrors.ErrValidation) {
			return err
		}
		return domainerrors.TransientFetch(err, "fetch page %s", key.String())
	}
	if page == nil {
		page = &domain.Page{}
	}

	m.house(page)

	m.mu.Lock()
	r := m.entry(key)
	added := 0
	for _, e := range page.Entries {
		if e.ID == "" || r.seen[e.ID] {
			continue
		}
		r.seen[e.ID] = true
		r.ids = append(r.ids, e.ID)
		added++
	}
	frontier := cursor == r.cursor
	if frontier {
		r.cursor = page.NextCursor
		r.exhausted = pageEnds(page)
	}
	r.lastErr = nil
	m.version++
	exhausted := r.exhausted
	onUpdate := m.onUpdate
	m.mu.Unlock()

	m.logger.Debug("page merged",
		"query", key.String(),
		"received", len(page.Entries),
		"added", added,
		"frontier", frontier,
		"exhausted", exhausted,
	)
	if onUpdate != nil {
		onUpdate(key)
	}
	return nil
}

// pageEnds reports whether page is the last of its query. A continuation
// cursor on a non-empty page keeps the query open even when the origin served
// fewer entries than asked for.
func pageEnds(page *domain.Page) bool {
	return page.Exhausted || page.NextCursor == "" || len(page.Entries) == 0
}

// house stores the entities a page carried.
func (m *Manager) house(page *domain.Page) {
	if m.store == nil {
		return
	}
	for _, e := range page.Entries {
		if e.Shelf != nil {
			m.store.UpsertShelf(e.Shelf)
		}
		if e.Tag != nil {
			m.store.UpsertTag(e.Tag)
		}
	}
}

// entry returns the result for key, creating it. Caller holds m.mu.
func (m *Manager) entry(key domain.QueryKey) *result {
	r, ok := m.results[key]
	if !ok {
		r = &result{seen: make(map[string]bool)}
		m.results[key] = r
	}
	return r
}

// snapshot copies r. Caller holds m.mu.
func (m *Manager) snapshot(key domain.QueryKey, r *result) Result {
	out := Result{
		Key:        key,
		IDs:        slices.Clone(r.ids),
		NextCursor: r.cursor,
		Exhausted:  r.exhausted,
		Loading:    r.inflight > 0,
	}
	if out.IDs == nil {
		out.IDs = []string{}
	}
	if r.lastErr != nil {
		out.LastError = r.lastErr.Error()
	}
	return out
}
