package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/shelfcache/internal/cache"
	"github.com/listenupapp/shelfcache/internal/domain"
	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
)

// fakeShelves serves shelves by ID, optionally blocking until gate is closed.
type fakeShelves struct {
	shelves map[string]*domain.Shelf
	errs    map[string]error
	gate    chan struct{}
	calls   map[string]int
	mu      sync.Mutex
}

func newFakeShelves(shelves ...*domain.Shelf) *fakeShelves {
	f := &fakeShelves{
		shelves: make(map[string]*domain.Shelf),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
	for _, s := range shelves {
		f.shelves[s.ID] = s
	}
	return f
}

func (f *fakeShelves) FetchShelf(_ context.Context, id string) (*domain.Shelf, error) {
	f.mu.Lock()
	f.calls[id]++
	err := f.errs[id]
	shelf, ok := f.shelves[id]
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainerrors.NotFoundf("shelf %s not found", id)
	}
	return shelf.Clone(), nil
}

func (f *fakeShelves) callsFor(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeShelves) setErr(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, id)
		return
	}
	f.errs[id] = err
}

func shelfWith(id, title string, contents ...domain.Content) *domain.Shelf {
	s := domain.NewShelf(id, "owner-1", title)
	for i, c := range contents {
		s.Append(domain.Item{Key: i + 1, Content: c})
	}
	return s
}

func refOf(t *testing.T, items []domain.ResolvedItem, key int) *domain.ResolvedRef {
	t.Helper()
	for _, it := range items {
		if it.Key == key {
			require.NotNil(t, it.Ref)
			return it.Ref
		}
	}
	t.Fatalf("item %d not found", key)
	return nil
}

func TestResolver_Enrich_NestedShelf(t *testing.T) {
	store := cache.New(nil)
	store.UpsertShelf(shelfWith("S", "Outer", domain.TextContent("intro"), domain.ShelfRefContent("R")))
	backend := newFakeShelves(shelfWith("R", "Nested", domain.TextContent("inside")))
	backend.gate = make(chan struct{})
	r := New(backend, store, nil)
	ctx := context.Background()

	items, err := r.Enrich(ctx, "S")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Nil(t, items[0].Ref)
	assert.Equal(t, domain.RefLoading, refOf(t, items, 2).State)

	// A second render while the fetch is outstanding does not fetch again.
	items, err = r.Enrich(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, domain.RefLoading, refOf(t, items, 2).State)

	close(backend.gate)
	r.Wait()

	items, err = r.Enrich(ctx, "S")
	require.NoError(t, err)
	ref := refOf(t, items, 2)
	assert.Equal(t, domain.RefResolved, ref.State)
	require.NotNil(t, ref.Shelf)
	assert.Equal(t, "Nested", ref.Shelf.Title)
	assert.Equal(t, 1, backend.callsFor("R"))
}

func TestResolver_Enrich_OneFetchAcrossShelves(t *testing.T) {
	store := cache.New(nil)
	store.UpsertShelf(shelfWith("A", "A", domain.ShelfRefContent("R")))
	store.UpsertShelf(shelfWith("B", "B", domain.ShelfRefContent("R"), domain.ShelfRefContent("R")))
	backend := newFakeShelves(shelfWith("R", "Shared"))
	backend.gate = make(chan struct{})
	r := New(backend, store, nil)
	ctx := context.Background()

	_, err := r.Enrich(ctx, "A")
	require.NoError(t, err)
	_, err = r.Enrich(ctx, "B")
	require.NoError(t, err)

	close(backend.gate)
	r.Wait()

	assert.Equal(t, 1, backend.callsFor("R"))
	items, err := r.View("B")
	require.NoError(t, err)
	assert.Equal(t, domain.RefResolved, refOf(t, items, 1).State)
	assert.Equal(t, domain.RefResolved, refOf(t, items, 2).State)
}

func TestResolver_Enrich_MissingReference(t *testing.T) {
	store := cache.New(nil)
	store.UpsertShelf(shelfWith("S", "S", domain.ShelfRefContent("gone")))
	backend := newFakeShelves()
	r := New(backend, store, nil)
	ctx := context.Background()

	_, err := r.Enrich(ctx, "S")
	require.NoError(t, err)
	r.Wait()

	items, err := r.Enrich(ctx, "S")
	require.NoError(t, err)
	r.Wait()

	assert.Equal(t, domain.RefMissing, refOf(t, items, 1).State)
	assert.True(t, r.IsMissing("gone"))
	assert.NoError(t, r.LastError("gone"))
	assert.Equal(t, 1, backend.callsFor("gone"), "missing references are not refetched")
}

func TestResolver_Enrich_TransientFailureRetries(t *testing.T) {
	store := cache.New(nil)
	store.UpsertShelf(shelfWith("S", "S", domain.ShelfRefContent("R")))
	backend := newFakeShelves(shelfWith("R", "Nested"))
	backend.setErr("R", errors.New("timeout"))
	r := New(backend, store, nil)
	ctx := context.Background()

	_, err := r.Enrich(ctx, "S")
	require.NoError(t, err)
	r.Wait()

	items, err := r.View("S")
	require.NoError(t, err)
	assert.Equal(t, domain.RefUnresolved, refOf(t, items, 1).State)
	assert.ErrorIs(t, r.LastError("R"), domainerrors.ErrTransientFetch)

	backend.setErr("R", nil)
	_, err = r.Enrich(ctx, "S")
	require.NoError(t, err)
	r.Wait()

	items, err = r.View("S")
	require.NoError(t, err)
	assert.Equal(t, domain.RefResolved, refOf(t, items, 1).State)
	assert.NoError(t, r.LastError("R"))
	assert.Equal(t, 2, backend.callsFor("R"))
}

func TestResolver_View_DoesNotFetch(t *testing.T) {
	store := cache.New(nil)
	store.UpsertShelf(shelfWith("S", "S", domain.ShelfRefContent("R")))
	backend := newFakeShelves(shelfWith("R", "R"))
	r := New(backend, store, nil)

	items, err := r.View("S")
	require.NoError(t, err)

	assert.Equal(t, domain.RefUnresolved, refOf(t, items, 1).State)
	assert.Zero(t, backend.callsFor("R"))
}

func TestResolver_View_UnknownShelf(t *testing.T) {
	r := New(newFakeShelves(), cache.New(nil), nil)

	_, err := r.View("nope")

	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestResolver_EnrichDeep_StopsOnCycles(t *testing.T) {
	store := cache.New(nil)
	store.UpsertShelf(shelfWith("A", "A", domain.ShelfRefContent("B")))
	backend := newFakeShelves(
		shelfWith("B", "B", domain.ShelfRefContent("C")),
		shelfWith("C", "C", domain.ShelfRefContent("A"), domain.ShelfRefContent("B")),
	)
	r := New(backend, store, nil)

	items, err := r.EnrichDeep(context.Background(), "A", 10)
	require.NoError(t, err)

	assert.Equal(t, domain.RefResolved, refOf(t, items, 1).State)
	assert.True(t, store.HasShelf("C"))
	assert.Equal(t, 1, backend.callsFor("B"))
	assert.Equal(t, 1, backend.callsFor("C"))
	assert.Zero(t, backend.callsFor("A"))
}

func TestResolver_EnrichDeep_RespectsDepth(t *testing.T) {
	store := cache.New(nil)
	store.UpsertShelf(shelfWith("A", "A", domain.ShelfRefContent("B")))
	backend := newFakeShelves(
		shelfWith("B", "B", domain.ShelfRefContent("C")),
		shelfWith("C", "C"),
	)
	r := New(backend, store, nil)

	_, err := r.EnrichDeep(context.Background(), "A", 1)
	require.NoError(t, err)

	assert.True(t, store.HasShelf("B"))
	assert.False(t, store.HasShelf("C"))
}

func TestResolver_OnResolvedCallback(t *testing.T) {
	store := cache.New(nil)
	store.UpsertShelf(shelfWith("S", "S", domain.ShelfRefContent("R"), domain.ShelfRefContent("X")))
	backend := newFakeShelves(shelfWith("R", "R"))
	r := New(backend, store, nil)

	var mu sync.Mutex
	got := map[string]domain.RefState{}
	r.OnResolved(func(id string, state domain.RefState) {
		mu.Lock()
		got[id] = state
		mu.Unlock()
	})

	_, err := r.Enrich(context.Background(), "S")
	require.NoError(t, err)
	r.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]domain.RefState{"R": domain.RefResolved, "X": domain.RefMissing}, got)
}

func TestResolver_Wait_CoversScheduledFetches(t *testing.T) {
	store := cache.New(nil)
	store.UpsertShelf(shelfWith("S", "S", domain.ShelfRefContent("R1"), domain.ShelfRefContent("R2")))
	backend := newFakeShelves(shelfWith("R1", "R1"), shelfWith("R2", "R2"))
	backend.gate = make(chan struct{})
	r := New(backend, store, nil)

	_, err := r.Enrich(context.Background(), "S")
	require.NoError(t, err)

	waited := make(chan struct{})
	go func() {
		r.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while fetches were blocked")
	case <-time.After(20 * time.Millisecond):
	}

	close(backend.gate)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after fetches finished")
	}
	assert.True(t, store.HasShelf("R1"))
	assert.True(t, store.HasShelf("R2"))
}

func TestResolver_Resolve(t *testing.T) {
	store := cache.New(nil)
	backend := newFakeShelves(shelfWith("R", "R"))
	backend.setErr("bad", errors.New("boom"))
	r := New(backend, store, nil)
	ctx := context.Background()

	state, err := r.Resolve(ctx, "R")
	require.NoError(t, err)
	assert.Equal(t, domain.RefResolved, state)

	state, err = r.Resolve(ctx, "bad")
	assert.ErrorIs(t, err, domainerrors.ErrTransientFetch)
	assert.Equal(t, domain.RefUnresolved, state)
}

func TestResolver_Invalidate_RefetchesMissing(t *testing.T) {
	store := cache.New(nil)
	store.UpsertShelf(shelfWith("S", "S", domain.ShelfRefContent("late")))
	backend := newFakeShelves()
	r := New(backend, store, nil)
	ctx := context.Background()

	state, err := r.Resolve(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, domain.RefMissing, state)

	backend.mu.Lock()
	backend.shelves["late"] = shelfWith("late", "Late")
	backend.mu.Unlock()
	r.Invalidate("late")

	state, err = r.Resolve(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, domain.RefResolved, state)
	assert.False(t, r.IsMissing("late"))
	assert.Equal(t, 2, backend.callsFor("late"))
}
