package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/marksync/internal/backend"
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

func TestKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{BookmarkKey("42"), "marksync:bookmark:42"},
		{UserBookmarksKey("u1"), "marksync:user:u1:bookmarks"},
		{ChangesChannel("u1"), "marksync:changes:u1"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	addr := os.Getenv("MARKSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MARKSYNC_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	userID := "test-" + time.Now().Format("150405.000000000")
	t.Cleanup(func() {
		ctx := context.Background()
		ids, _ := client.ZRange(ctx, UserBookmarksKey(userID), 0, -1).Result()
		for _, id := range ids {
			client.Del(ctx, BookmarkKey(id))
		}
		client.Del(ctx, UserBookmarksKey(userID))
	})

	return NewStore(client, logger.NewNop()), userID
}

func TestStoreInsertListDelete(t *testing.T) {
	s, userID := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Ping(ctx))

	inserted := make(chan domain.Bookmark, 2)
	deleted := make(chan string, 1)
	sub, err := s.SubscribeToChanges(ctx, userID,
		func(b domain.Bookmark) { inserted <- b },
		func(id string) { deleted <- id })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	first, err := s.InsertBookmark(ctx, backend.NewBookmark{UserID: userID, Title: "Docs", URL: "https://nextjs.org/docs", MutationID: "m1"})
	require.NoError(t, err)
	second, err := s.InsertBookmark(ctx, backend.NewBookmark{UserID: userID, Title: "Supabase", URL: "https://supabase.com"})
	require.NoError(t, err)

	assert.Equal(t, "m1", first.ClientMutationID)

	rows, err := s.ListBookmarks(ctx, userID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, second.ID, rows[0].ID)
	assert.Equal(t, first.ID, rows[1].ID)

	select {
	case b := <-inserted:
		assert.Equal(t, first.ID, b.ID)
		assert.Equal(t, "m1", b.ClientMutationID)
	case <-ctx.Done():
		t.Fatal("insert not delivered")
	}

	err = s.DeleteBookmark(ctx, "someone-else", first.ID)
	assert.True(t, errors.Is(err, backend.ErrNotFound))

	require.NoError(t, s.DeleteBookmark(ctx, userID, first.ID))
	assert.ErrorIs(t, s.DeleteBookmark(ctx, userID, first.ID), backend.ErrNotFound)

	select {
	case id := <-deleted:
		assert.Equal(t, first.ID, id)
	case <-ctx.Done():
		t.Fatal("delete not delivered")
	}

	require.NoError(t, sub.Unsubscribe())
}

func TestListBookmarksSkipsUnreadableRows(t *testing.T) {
	s, userID := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	good, err := s.InsertBookmark(ctx, backend.NewBookmark{UserID: userID, Title: "Docs", URL: "https://nextjs.org/docs"})
	require.NoError(t, err)

	badID := "corrupt-" + userID
	require.NoError(t, s.client.Set(ctx, BookmarkKey(badID), "{not json", 0).Err())
	require.NoError(t, s.client.ZAdd(ctx, UserBookmarksKey(userID), redis.Z{
		Score:  float64(time.Now().Add(time.Hour).UnixNano()),
		Member: badID,
	}).Err())

	rows, err := s.ListBookmarks(ctx, userID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, good.ID, rows[0].ID)
}
