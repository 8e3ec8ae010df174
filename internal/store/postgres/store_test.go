package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/marksync/internal/backend"
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

func TestSchemaIsIdempotent(t *testing.T) {
	for _, stmt := range []string{"CREATE TABLE IF NOT EXISTS", "CREATE INDEX IF NOT EXISTS", "CREATE OR REPLACE FUNCTION", "DROP TRIGGER IF EXISTS"} {
		if !strings.Contains(schema, stmt) {
			t.Errorf("schema missing %q", stmt)
		}
	}
	if !strings.Contains(schema, "'"+NotifyChannel+"'") {
		t.Errorf("schema does not notify on %s", NotifyChannel)
	}
}

func TestDeleteMalformedID(t *testing.T) {
	s := &Store{log: logger.NewNop()}
	err := s.DeleteBookmark(context.Background(), "u1", "optimistic-m1")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("MARKSYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MARKSYNC_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Open(ctx, dsn, 5*time.Second, logger.NewNop())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))

	userID := "test-" + uuid.NewString()

	inserted := make(chan domain.Bookmark, 4)
	deleted := make(chan string, 4)
	sub, err := s.SubscribeToChanges(ctx, userID,
		func(b domain.Bookmark) { inserted <- b },
		func(id string) { deleted <- id })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// another user's rows never reach this subscriber
	_, err = s.InsertBookmark(ctx, backend.NewBookmark{UserID: "other-" + userID, Title: "x", URL: "https://x.example"})
	require.NoError(t, err)

	b, err := s.InsertBookmark(ctx, backend.NewBookmark{UserID: userID, Title: "Docs", URL: "https://nextjs.org/docs", MutationID: "m1"})
	require.NoError(t, err)

	select {
	case got := <-inserted:
		assert.Equal(t, b.ID, got.ID)
		assert.Equal(t, "m1", got.ClientMutationID)
		assert.Equal(t, userID, got.UserID)
	case <-ctx.Done():
		t.Fatal("insert notification not delivered")
	}

	rows, err := s.ListBookmarks(ctx, userID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Docs", rows[0].Title)

	assert.ErrorIs(t, s.DeleteBookmark(ctx, "intruder", b.ID), backend.ErrNotFound)
	require.NoError(t, s.DeleteBookmark(ctx, userID, b.ID))

	select {
	case id := <-deleted:
		assert.Equal(t, b.ID, id)
	case <-ctx.Done():
		t.Fatal("delete notification not delivered")
	}

	require.NoError(t, sub.Unsubscribe())
}
