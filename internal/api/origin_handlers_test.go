package api

import (
	"context"
	"encoding/json/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/shelfcache/internal/domain"
	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
	"github.com/listenupapp/shelfcache/internal/http/response"
	"github.com/listenupapp/shelfcache/internal/remote"
)

// originClient starts the server over real HTTP and returns a remote client for it.
func originClient(t *testing.T, ts *testServer) *remote.Client {
	t.Helper()
	httpServer := httptest.NewServer(ts.Server)
	t.Cleanup(httpServer.Close)

	client, err := remote.NewClient(remote.ClientConfig{
		BaseURL:   httpServer.URL,
		Timeout:   5 * time.Second,
		RateLimit: 1000,
		Burst:     100,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestOriginRoutes_ServeRemoteClient(t *testing.T) {
	ts := setupTestServer(t)
	ts.put(t, "s1", "alice", 1, []string{"poetry"},
		domain.TextContent("a"), domain.TextContent("b"), domain.TextContent("c"),
	)
	ctx := context.Background()
	client := originClient(t, ts)

	shelf, err := client.FetchShelf(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "alice", shelf.OwnerID)
	assert.Equal(t, []int{1, 2, 3}, shelf.Order())

	_, err = client.FetchShelf(ctx, "missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	page, err := client.FetchPage(ctx, domain.KindShelvesByTag, "poetry", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, page.IDs())
	assert.True(t, page.Exhausted)

	require.NoError(t, client.CommitReorder(ctx, "s1", []int{2, 3, 1}))
	stored, err := ts.origin.GetShelf(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 1}, stored.Order())

	err = client.CommitReorder(ctx, "s1", []int{1, 2})
	assert.ErrorIs(t, err, domainerrors.ErrConflict)
}

func TestOriginRoutes_Publish(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	client := originClient(t, ts)

	shelf := domain.NewShelf("s2", "bob", "Published")
	shelf.Append(domain.Item{Key: 1, Content: domain.TextContent("one")})
	require.NoError(t, client.PutShelf(ctx, shelf))

	updated, err := client.AppendItems(ctx, "s2", []domain.Item{
		{Key: 7, Content: domain.ShelfRefContent("s1")},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 7}, updated.Order())

	_, err = client.AppendItems(ctx, "s2", []domain.Item{{Key: 7, Content: domain.TextContent("dup")}})
	assert.ErrorIs(t, err, domainerrors.ErrConflict)

	_, err = client.AppendItems(ctx, "nope", []domain.Item{{Key: 1, Content: domain.TextContent("x")}})
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestOriginRoutes_RejectBadRequests(t *testing.T) {
	ts := setupTestServer(t)
	ts.put(t, "s1", "alice", 1, nil, domain.TextContent("a"))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown kind", http.MethodGet, "/origin/v1/pages/bestsellers", "", http.StatusBadRequest},
		{"limit too large", http.MethodGet, "/origin/v1/pages/feed?key=recency&limit=1000", "", http.StatusBadRequest},
		{"malformed body", http.MethodPut, "/origin/v1/shelves/s1/order", "{", http.StatusBadRequest},
		{"empty order", http.MethodPut, "/origin/v1/shelves/s1/order", `{"order":[]}`, http.StatusBadRequest},
		{"id mismatch", http.MethodPut, "/origin/v1/shelves/s1", `{"id":"s9","owner_id":"alice","title":"x"}`, http.StatusBadRequest},
		{"invalid content", http.MethodPost, "/origin/v1/shelves/s1/items", `{"items":[{"key":2,"content":{"kind":"media"}}]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var args []any
			if tt.body != "" {
				args = append(args, "Content-Type: application/json", strings.NewReader(tt.body))
			}
			resp := ts.api.Do(tt.method, tt.path, args...)
			assert.Equal(t, tt.status, resp.Code, resp.Body.String())

			var env response.Envelope
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
			assert.False(t, env.Success)
			assert.Equal(t, string(domainerrors.CodeValidation), env.Code)
		})
	}
}

func TestOriginRoutes_DeleteEvictsCachedShelf(t *testing.T) {
	ts := setupTestServer(t)
	ts.put(t, "s1", "alice", 1, nil, domain.TextContent("a"))

	require.Equal(t, http.StatusOK, ts.api.Get("/api/v1/shelves/s1").Code)

	resp := ts.api.Delete("/origin/v1/shelves/s1")
	require.Equal(t, http.StatusNoContent, resp.Code)

	assert.Equal(t, 0, ts.service.Stats().Shelves)
	assert.Equal(t, http.StatusNotFound, ts.api.Get("/api/v1/shelves/s1").Code)
}

func TestOriginRoutes_WriteRateLimit(t *testing.T) {
	ts := setupTestServer(t)
	ts.put(t, "s1", "alice", 1, nil, domain.TextContent("a"))
	srv := NewServer(ts.service, nil, Options{Origin: ts.origin, OriginWriteRate: 1}, nil)
	t.Cleanup(srv.Close)

	body := `{"order":[1]}`
	first := httptest.NewRecorder()
	srv.ServeHTTP(first, httptest.NewRequest(http.MethodPut, "/origin/v1/shelves/s1/order", strings.NewReader(body)))
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	srv.ServeHTTP(second, httptest.NewRequest(http.MethodPut, "/origin/v1/shelves/s1/order", strings.NewReader(body)))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	reads := httptest.NewRecorder()
	srv.ServeHTTP(reads, httptest.NewRequest(http.MethodGet, "/origin/v1/shelves/s1", nil))
	assert.Equal(t, http.StatusOK, reads.Code, "reads are not limited")
}
