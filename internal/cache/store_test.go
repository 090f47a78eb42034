package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/shelfcache/internal/domain"
	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
)

var fixedTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// snapshot builds a backend-style shelf with the given keys in display order.
func snapshot(id string, keys ...int) *domain.Shelf {
	s := &domain.Shelf{
		ID:        id,
		OwnerID:   "owner-1",
		Title:     "Shelf " + id,
		CreatedAt: fixedTime,
		UpdatedAt: fixedTime,
		Positions: make(map[int]int64),
		Items:     make(map[int]domain.Item),
	}
	for i, k := range keys {
		s.Positions[k] = int64(i * 10)
		s.Items[k] = domain.Item{Key: k, Content: domain.TextContent("item")}
	}
	return s
}

func orderOf(t *testing.T, s *Store, shelfID string) []int {
	t.Helper()
	items, ok := s.GetItemsInOrder(shelfID)
	require.True(t, ok)
	keys := make([]int, len(items))
	for i, it := range items {
		keys[i] = it.Key
	}
	return keys
}

func TestStore_UpsertShelf_Idempotent(t *testing.T) {
	s := New(nil)
	s.UpsertShelf(snapshot("s1", 1, 2, 3))
	require.NoError(t, s.UpsertItems("s1", []domain.Item{{Key: 9, Content: domain.TextContent("local")}}))

	incoming := snapshot("s1", 3, 1, 2)
	s.UpsertShelf(incoming)
	first, ok := s.GetShelf("s1")
	require.True(t, ok)

	s.UpsertShelf(incoming)
	second, _ := s.GetShelf("s1")

	assert.Equal(t, first, second)
	assert.Equal(t, []int{3, 1, 2, 9}, orderOf(t, s, "s1"))
}

func TestStore_UpsertShelf_RepairsInvariant(t *testing.T) {
	s := New(nil)
	broken := snapshot("s1", 1, 2)
	// One position without an item, one item without a position.
	broken.Positions[7] = 99
	broken.Items[5] = domain.Item{Key: 5, Content: domain.TextContent("x")}

	s.UpsertShelf(broken)

	got, ok := s.GetShelf("s1")
	require.True(t, ok)
	assert.Len(t, got.Positions, len(got.Items))
	assert.NotContains(t, got.Positions, 7)
	assert.Equal(t, []int{1, 2, 5}, got.Order())
}

func TestStore_UpsertShelf_ScalarsLastWins(t *testing.T) {
	s := New(nil)
	s.UpsertShelf(snapshot("s1", 1))

	next := snapshot("s1", 1)
	next.Title = "Renamed"
	next.Tags = []string{"horror"}
	s.UpsertShelf(next)

	got, _ := s.GetShelf("s1")
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, []string{"horror"}, got.Tags)
}

func TestStore_UpsertShelf_KeepsPositionsWhilePending(t *testing.T) {
	s := New(nil)
	s.UpsertShelf(snapshot("s1", 1, 2, 3))
	s.SetPendingOrder("s1", []int{3, 1, 2})

	// Backend reports a different committed order plus a new item.
	s.UpsertShelf(snapshot("s1", 2, 1, 3, 4))

	committed, ok := s.CommittedOrder("s1")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3, 4}, committed)
	assert.Equal(t, []int{3, 1, 2, 4}, orderOf(t, s, "s1"))

	s.ClearPendingOrder("s1")
	s.UpsertShelf(snapshot("s1", 2, 1, 3, 4))
	assert.Equal(t, []int{2, 1, 3, 4}, orderOf(t, s, "s1"))
}

func TestStore_GetItemsInOrder_DropsVanishedPendingKeys(t *testing.T) {
	s := New(nil)
	s.UpsertShelf(snapshot("s1", 1, 2, 3))
	s.SetPendingOrder("s1", []int{3, 1, 2})

	s.UpsertShelf(snapshot("s1", 2, 3))

	assert.Equal(t, []int{3, 2}, orderOf(t, s, "s1"))
}

func TestStore_UpsertItems_UnconfirmedLifecycle(t *testing.T) {
	s := New(nil)
	s.UpsertShelf(snapshot("s1", 1, 2))

	require.NoError(t, s.UpsertItems("s1", []domain.Item{{Key: 9, Content: domain.TextContent("new")}}))
	assert.Equal(t, []int{1, 2, 9}, orderOf(t, s, "s1"))

	// A snapshot that predates the local add does not drop it.
	s.UpsertShelf(snapshot("s1", 1, 2))
	assert.Equal(t, []int{1, 2, 9}, orderOf(t, s, "s1"))

	// Once confirmed, the item follows snapshot membership like any other.
	s.UpsertShelf(snapshot("s1", 9, 1, 2))
	assert.Equal(t, []int{9, 1, 2}, orderOf(t, s, "s1"))
	s.UpsertShelf(snapshot("s1", 1, 2))
	assert.Equal(t, []int{1, 2}, orderOf(t, s, "s1"))
}

func TestStore_UpsertItems_MergesPayload(t *testing.T) {
	s := New(nil)
	s.UpsertShelf(snapshot("s1", 1, 2))

	require.NoError(t, s.UpsertItems("s1", []domain.Item{{Key: 2, Content: domain.TextContent("edited")}}))

	got, _ := s.GetShelf("s1")
	assert.Equal(t, "edited", got.Items[2].Content.Text)
	assert.Equal(t, []int{1, 2}, got.Order())
}

func TestStore_UpsertItems_UnknownShelf(t *testing.T) {
	s := New(nil)

	err := s.UpsertItems("missing", []domain.Item{{Key: 1}})

	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestStore_RemoveItems(t *testing.T) {
	s := New(nil)
	s.UpsertShelf(snapshot("s1", 1, 2, 3))

	require.NoError(t, s.RemoveItems("s1", []int{2, 42}))

	assert.Equal(t, []int{1, 3}, orderOf(t, s, "s1"))
}

func TestStore_CommitOrder(t *testing.T) {
	s := New(nil)
	s.UpsertShelf(snapshot("s1", 1, 2, 3))

	require.NoError(t, s.CommitOrder("s1", []int{3, 1, 2}))

	got, _ := s.GetShelf("s1")
	assert.Equal(t, map[int]int64{3: 0, 1: 1, 2: 2}, got.Positions)
}

func TestStore_GetShelf_ReturnsCopy(t *testing.T) {
	s := New(nil)
	s.UpsertShelf(snapshot("s1", 1))

	got, _ := s.GetShelf("s1")
	got.Title = "mutated"
	delete(got.Items, 1)

	again, _ := s.GetShelf("s1")
	assert.Equal(t, "Shelf s1", again.Title)
	assert.Contains(t, again.Items, 1)
}

func TestStore_VersionAdvancesOnMutation(t *testing.T) {
	s := New(nil)
	v0 := s.Version()

	s.UpsertShelf(snapshot("s1", 1))
	v1 := s.Version()
	s.UpsertTag(&domain.Tag{Slug: "horror", ShelfCount: 2})
	v2 := s.Version()

	assert.Greater(t, v1, v0)
	assert.Greater(t, v2, v1)

	tag, ok := s.GetTag("horror")
	require.True(t, ok)
	assert.Equal(t, 2, tag.ShelfCount)
}

func TestEvictor_EvictsLeastRecentlyUsed(t *testing.T) {
	s := New(nil)
	_, err := NewEvictor(s, 2, nil)
	require.NoError(t, err)

	s.UpsertShelf(snapshot("a", 1))
	s.UpsertShelf(snapshot("b", 1))
	s.GetShelf("a")
	s.UpsertShelf(snapshot("c", 1))

	assert.True(t, s.HasShelf("a"))
	assert.False(t, s.HasShelf("b"))
	assert.True(t, s.HasShelf("c"))
}

func TestEvictor_SkipsPendingReorder(t *testing.T) {
	s := New(nil)
	_, err := NewEvictor(s, 1, nil)
	require.NoError(t, err)

	s.UpsertShelf(snapshot("a", 1, 2))
	s.SetPendingOrder("a", []int{2, 1})
	s.UpsertShelf(snapshot("b", 1))

	assert.True(t, s.HasShelf("a"))
	assert.True(t, s.HasShelf("b"))
	assert.Equal(t, 2, s.ShelfCount())
}
