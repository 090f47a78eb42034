package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/shelfcache/internal/domain"
	domainerrors "github.com/listenupapp/shelfcache/internal/errors"
	"github.com/listenupapp/shelfcache/internal/remote"
	"github.com/listenupapp/shelfcache/internal/search"
)

type recordingEmitter struct {
	events []any
	mu     sync.Mutex
}

func (r *recordingEmitter) Emit(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var baseTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// testShelf builds a shelf created `age` minutes after baseTime with text items.
func testShelf(id, owner string, age int, tags []string, keys ...int) *domain.Shelf {
	shelf := domain.NewShelf(id, owner, "Shelf "+id)
	shelf.CreatedAt = baseTime.Add(time.Duration(age) * time.Minute)
	shelf.Tags = tags
	for _, k := range keys {
		shelf.Append(domain.Item{Key: k, Content: domain.TextContent("item")})
	}
	return shelf
}

func putAll(t *testing.T, s *Store, shelves ...*domain.Shelf) {
	t.Helper()
	for _, shelf := range shelves {
		require.NoError(t, s.PutShelf(context.Background(), shelf))
	}
}

func TestNew_OnDiskReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.PutShelf(ctx, testShelf("s1", "u1", 0, nil, 1)))
	require.NoError(t, s.Close())

	reopened, err := New(dir, nil, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetShelf(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, got.Order())
}

func TestStore_PutShelf_Normalizes(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	shelf := testShelf("s1", "u1", 0, []string{"Sci Fi", "sci-fi", "Horror"}, 1, 2)
	shelf.Title = "  Nested  "
	shelf.Unconfirmed = true
	require.NoError(t, s.PutShelf(ctx, shelf))

	got, err := s.GetShelf(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Nested", got.Title)
	assert.Equal(t, []string{"horror", "sci-fi"}, got.Tags)
	assert.False(t, got.Unconfirmed)
	assert.Equal(t, baseTime, got.CreatedAt.UTC())
}

func TestStore_PutShelf_Validation(t *testing.T) {
	selfRef := testShelf("s1", "u1", 0, nil)
	selfRef.Append(domain.Item{Key: 1, Content: domain.ShelfRefContent("s1")})

	badContent := testShelf("s1", "u1", 0, nil)
	badContent.Append(domain.Item{Key: 1, Content: domain.Content{Kind: domain.ContentMedia}})

	tests := []struct {
		name  string
		shelf *domain.Shelf
	}{
		{"nil", nil},
		{"missing title", domain.NewShelf("s1", "u1", "")},
		{"missing owner", domain.NewShelf("s1", "", "t")},
		{"colon in id", domain.NewShelf("a:b", "u1", "t")},
		{"colon in owner", domain.NewShelf("s1", "alice:evil", "t")},
		{"self reference", selfRef},
		{"invalid content", badContent},
	}

	s := setupTestStore(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.PutShelf(context.Background(), tt.shelf)
			assert.ErrorIs(t, err, domainerrors.ErrValidation)
		})
	}
}

func TestStore_PutShelf_OwnerImmutable(t *testing.T) {
	s := setupTestStore(t)
	putAll(t, s, testShelf("s1", "u1", 0, nil))

	err := s.PutShelf(context.Background(), testShelf("s1", "u2", 0, nil))

	assert.ErrorIs(t, err, domainerrors.ErrConflict)
}

func TestStore_GetShelf_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetShelf(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrShelfNotFound)
}

func TestStore_TagCounts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	putAll(t, s,
		testShelf("s1", "u1", 0, []string{"sci-fi"}),
		testShelf("s2", "u1", 1, []string{"sci-fi", "horror"}),
	)

	tag, err := s.GetTag(ctx, "sci-fi")
	require.NoError(t, err)
	assert.Equal(t, 2, tag.ShelfCount)

	// Retag s2 away from sci-fi.
	putAll(t, s, testShelf("s2", "u1", 1, []string{"horror"}))
	tag, err = s.GetTag(ctx, "sci-fi")
	require.NoError(t, err)
	assert.Equal(t, 1, tag.ShelfCount)

	require.NoError(t, s.DeleteShelf(ctx, "s1"))
	_, err = s.GetTag(ctx, "sci-fi")
	assert.ErrorIs(t, err, ErrTagNotFound)

	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "horror", tags[0].Slug)
}

func TestStore_FetchPage_PopularTags(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	putAll(t, s,
		testShelf("s1", "u1", 0, []string{"a", "b", "c"}),
		testShelf("s2", "u1", 1, []string{"b", "c"}),
		testShelf("s3", "u1", 2, []string{"c"}),
		testShelf("s4", "u1", 3, []string{"d"}),
	)

	first, err := s.FetchPage(ctx, domain.KindPopularTags, "", "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, first.IDs())
	assert.Equal(t, 3, first.Entries[0].Tag.ShelfCount)
	assert.False(t, first.Exhausted)
	require.NotEmpty(t, first.NextCursor)

	second, err := s.FetchPage(ctx, domain.KindPopularTags, "", first.NextCursor, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, second.IDs())
	assert.True(t, second.Exhausted)
	assert.Empty(t, second.NextCursor)
}

func TestStore_FetchPage_ShelvesByTag(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	putAll(t, s,
		testShelf("s1", "u1", 0, []string{"sci-fi"}),
		testShelf("s2", "u2", 1, []string{"sci-fi"}),
		testShelf("s3", "u3", 2, []string{"sci-fi"}),
		testShelf("s4", "u3", 3, []string{"horror"}),
	)

	first, err := s.FetchPage(ctx, domain.KindShelvesByTag, "sci-fi", "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, first.IDs())
	assert.NotNil(t, first.Entries[0].Shelf)
	assert.False(t, first.Exhausted)

	second, err := s.FetchPage(ctx, domain.KindShelvesByTag, "Sci Fi", first.NextCursor, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"s3"}, second.IDs())
	assert.True(t, second.Exhausted)

	_, err = s.FetchPage(ctx, domain.KindShelvesByTag, "horror", first.NextCursor, 2)
	assert.ErrorIs(t, err, domainerrors.ErrValidation, "cursor from another tag")
}

func TestStore_FetchPage_OwnedShelves(t *testing.T) {
	s := setupTestStore(t)
	putAll(t, s,
		testShelf("s1", "u1", 0, nil),
		testShelf("s2", "u2", 1, nil),
		testShelf("s3", "u1", 2, nil),
	)

	page, err := s.FetchPage(context.Background(), domain.KindOwnedShelves, "u1", "", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"s1", "s3"}, page.IDs())
	assert.True(t, page.Exhausted)
}

func TestStore_FetchPage_OwnedShelves_OwnerPrefixIsolated(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	putAll(t, s, testShelf("mine", "alice", 0, nil))

	err := s.PutShelf(ctx, testShelf("theirs", "alice:evil", 1, nil))
	require.ErrorIs(t, err, domainerrors.ErrValidation)

	page, err := s.FetchPage(ctx, domain.KindOwnedShelves, "alice", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, page.IDs())

	_, err = s.FetchPage(ctx, domain.KindOwnedShelves, "alice:", "", 10)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestStore_FetchPage_Feeds(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	story := testShelf("s3", "u1", 2, nil)
	story.Append(domain.Item{Key: 9, Content: domain.ShelfRefContent("s1")})
	putAll(t, s,
		testShelf("s1", "u1", 0, nil),
		testShelf("s2", "u1", 1, nil),
		story,
	)

	recency, err := s.FetchPage(ctx, domain.KindFeed, domain.FeedRecency, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"s3", "s2", "s1"}, recency.IDs())

	storyline, err := s.FetchPage(ctx, domain.KindFeed, domain.FeedStoryline, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"s3"}, storyline.IDs())

	random, err := s.FetchPage(ctx, domain.KindFeed, domain.FeedRandom, "", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, random.IDs())

	again, err := s.FetchPage(ctx, domain.KindFeed, domain.FeedRandom, "", 10)
	require.NoError(t, err)
	assert.Equal(t, random.IDs(), again.IDs(), "random order is stable")

	// Dropping the reference removes the shelf from the storyline.
	putAll(t, s, testShelf("s3", "u1", 2, nil))
	storyline, err = s.FetchPage(ctx, domain.KindFeed, domain.FeedStoryline, "", 10)
	require.NoError(t, err)
	assert.Empty(t, storyline.IDs())

	_, err = s.FetchPage(ctx, domain.KindFeed, "trending", "", 10)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestStore_FetchPage_FeedPagination(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for i, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		putAll(t, s, testShelf(id, "u1", i, nil))
	}

	var got []string
	cursor := ""
	for range 5 {
		page, err := s.FetchPage(ctx, domain.KindFeed, domain.FeedRecency, cursor, 2)
		require.NoError(t, err)
		got = append(got, page.IDs()...)
		if page.Exhausted {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, []string{"s5", "s4", "s3", "s2", "s1"}, got)
}

func TestStore_FetchPage_TagSearch(t *testing.T) {
	tags := []string{"sci-fi", "science", "fiction", "horror"}

	t.Run("key scan", func(t *testing.T) {
		s := setupTestStore(t)
		putAll(t, s, testShelf("s1", "u1", 0, tags))

		page, err := s.FetchPage(context.Background(), domain.KindTagSearch, "sci", "", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"sci-fi", "science"}, page.IDs())
	})

	t.Run("bleve index", func(t *testing.T) {
		s := setupTestStore(t)
		ctx := context.Background()
		putAll(t, s, testShelf("s1", "u1", 0, tags))

		index, err := search.NewTagIndex(search.Options{})
		require.NoError(t, err)
		defer index.Close()
		require.NoError(t, s.SetTagIndexer(ctx, index))

		first, err := s.FetchPage(ctx, domain.KindTagSearch, "fi", "", 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"fiction"}, first.IDs())
		assert.False(t, first.Exhausted)

		second, err := s.FetchPage(ctx, domain.KindTagSearch, "fi", first.NextCursor, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"sci-fi"}, second.IDs())
		assert.True(t, second.Exhausted)

		// New tags reach the index through writes.
		putAll(t, s, testShelf("s2", "u1", 1, []string{"fiji"}))
		page, err := s.FetchPage(ctx, domain.KindTagSearch, "fij", "", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"fiji"}, page.IDs())
	})
}

func TestStore_FetchPage_UnknownKind(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.FetchPage(context.Background(), "trending", "", "", 10)

	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestStore_CommitReorder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	putAll(t, s, testShelf("s1", "u1", 0, nil, 1, 2, 3, 4))

	require.NoError(t, s.CommitReorder(ctx, "s1", []int{3, 1, 2, 4}))

	got, err := s.GetShelf(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 2, 4}, got.Order())

	tests := []struct {
		name    string
		shelfID string
		order   []int
		wantErr error
	}{
		{"missing key", "s1", []int{3, 1, 2}, domainerrors.ErrConflict},
		{"unknown key", "s1", []int{3, 1, 2, 9}, domainerrors.ErrConflict},
		{"duplicate key", "s1", []int{3, 3, 2, 4}, domainerrors.ErrConflict},
		{"unknown shelf", "nope", []int{1}, domainerrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.CommitReorder(ctx, tt.shelfID, tt.order), tt.wantErr)
		})
	}
}

func TestStore_AppendItems(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	putAll(t, s, testShelf("s1", "u1", 0, nil, 1))

	got, err := s.AppendItems(ctx, "s1", []domain.Item{{Key: 2, Content: domain.TextContent("more")}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got.Order())

	_, err = s.AppendItems(ctx, "s1", []domain.Item{{Key: 1, Content: domain.TextContent("dup")}})
	assert.ErrorIs(t, err, domainerrors.ErrConflict)
}

func TestStore_AppendItems_Concurrent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	putAll(t, s, testShelf("s1", "u1", 0, []string{"poetry"}))

	const writers = 20
	var wg sync.WaitGroup
	for k := 1; k <= writers; k++ {
		wg.Go(func() {
			_, err := s.AppendItems(ctx, "s1", []domain.Item{{Key: k, Content: domain.TextContent("x")}})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	got, err := s.GetShelf(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got.Items, writers, "every acknowledged append is stored")
	assert.Len(t, got.Order(), writers)
	assert.Equal(t, baseTime, got.CreatedAt.UTC())

	tag, err := s.GetTag(ctx, "poetry")
	require.NoError(t, err)
	assert.Equal(t, 1, tag.ShelfCount, "appends leave tag counts alone")
}

func TestStore_AppendItems_UnknownShelf(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.AppendItems(context.Background(), "nope", []domain.Item{{Key: 1, Content: domain.TextContent("x")}})
	assert.ErrorIs(t, err, ErrShelfNotFound)
}

func TestStore_EmitsChanges(t *testing.T) {
	emitter := &recordingEmitter{}
	s := setupTestStore(t)
	s.SetEventEmitter(emitter)
	ctx := context.Background()

	putAll(t, s, testShelf("s1", "u1", 0, nil, 1, 2))
	require.NoError(t, s.CommitReorder(ctx, "s1", []int{2, 1}))
	require.NoError(t, s.DeleteShelf(ctx, "s1"))

	assert.Equal(t, []any{
		domain.ShelfChanged{ShelfID: "s1"},
		domain.ShelfChanged{ShelfID: "s1"},
		domain.ShelfChanged{ShelfID: "s1", Deleted: true},
	}, emitter.snapshot())
}

func TestFlaky_FailNext(t *testing.T) {
	s := setupTestStore(t)
	putAll(t, s, testShelf("s1", "u1", 0, nil))
	flaky := NewFlaky(s, FlakyOptions{})
	ctx := context.Background()

	flaky.FailNext(OpFetchShelf, 1)

	_, err := flaky.FetchShelf(ctx, "s1")
	assert.ErrorIs(t, err, ErrInjected)

	got, err := flaky.FetchShelf(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
}

func TestFlaky_FailureRateAndLatency(t *testing.T) {
	s := setupTestStore(t)
	always := NewFlaky(s, FlakyOptions{FailureRate: 1, Seed: 7})

	err := always.CommitReorder(context.Background(), "s1", []int{1})
	assert.ErrorIs(t, err, ErrInjected)

	slow := NewFlaky(s, FlakyOptions{Latency: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = slow.FetchPage(ctx, domain.KindPopularTags, "", "", 10)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type readOnlyBackend struct{ remote.Backend }

func TestFlaky_Publish(t *testing.T) {
	s := setupTestStore(t)
	flaky := NewFlaky(s, FlakyOptions{})
	ctx := context.Background()

	require.NoError(t, flaky.PutShelf(ctx, testShelf("s1", "u1", 0, nil, 1)))

	flaky.FailNext(OpPublish, 1)
	_, err := flaky.AppendItems(ctx, "s1", []domain.Item{{Key: 2, Content: domain.TextContent("b")}})
	assert.ErrorIs(t, err, ErrInjected)

	got, err := flaky.AppendItems(ctx, "s1", []domain.Item{{Key: 2, Content: domain.TextContent("b")}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got.Order())

	readOnly := NewFlaky(readOnlyBackend{s}, FlakyOptions{})
	assert.ErrorIs(t, readOnly.PutShelf(ctx, testShelf("s2", "u1", 0, nil)), ErrNotPublishable)
}
