package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/backend"
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// ListBookmarks returns the user's bookmarks, newest first
func (s *Store) ListBookmarks(ctx context.Context, userID string) ([]domain.Bookmark, error) {
	ids, err := s.client.ZRevRange(ctx, UserBookmarksKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmark IDs: %w", err)
	}

	if len(ids) == 0 {
		return []domain.Bookmark{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = BookmarkKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmarks: %w", err)
	}

	bookmarks := make([]domain.Bookmark, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Row vanished between ZREVRANGE and MGET
			continue
		}
		var b domain.Bookmark
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			s.log.Warn("skipping unreadable bookmark",
				logger.String("id", ids[i]),
				logger.Error(err))
			continue
		}
		bookmarks = append(bookmarks, b)
	}

	return bookmarks, nil
}

// InsertBookmark stores a new bookmark and announces it on the user's
// change channel in the same transaction
func (s *Store) InsertBookmark(ctx context.Context, in backend.NewBookmark) (domain.Bookmark, error) {
	seq, err := s.client.Incr(ctx, KeyBookmarkSeq).Result()
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to allocate bookmark id: %w", err)
	}

	b := domain.Bookmark{
		ID:               strconv.FormatInt(seq, 10),
		UserID:           in.UserID,
		Title:            in.Title,
		URL:              in.URL,
		CreatedAt:        s.now(),
		ClientMutationID: in.MutationID,
	}

	data, err := json.Marshal(b)
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to marshal bookmark: %w", err)
	}
	change, err := json.Marshal(backend.Change{Event: backend.EventInsert, New: &b})
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to marshal change: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, BookmarkKey(b.ID), data, 0)
		pipe.ZAdd(ctx, UserBookmarksKey(b.UserID), redis.Z{
			Score:  float64(b.CreatedAt.UnixNano()),
			Member: b.ID,
		})
		pipe.Publish(ctx, ChangesChannel(b.UserID), change)
		return nil
	})
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to save bookmark: %w", err)
	}

	return b, nil
}

// DeleteBookmark removes one of the user's bookmarks. Rows owned by another
// user are reported as not found.
func (s *Store) DeleteBookmark(ctx context.Context, userID, id string) error {
	b, err := s.getBookmark(ctx, id)
	if err != nil {
		return err
	}
	if b.UserID != userID {
		return fmt.Errorf("%w: %s", backend.ErrNotFound, id)
	}

	change, err := json.Marshal(backend.Change{
		Event: backend.EventDelete,
		Old:   &backend.ChangeKey{ID: id, UserID: userID},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, BookmarkKey(id))
		pipe.ZRem(ctx, UserBookmarksKey(userID), id)
		pipe.Publish(ctx, ChangesChannel(userID), change)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}

	return nil
}

func (s *Store) getBookmark(ctx context.Context, id string) (domain.Bookmark, error) {
	data, err := s.client.Get(ctx, BookmarkKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Bookmark{}, fmt.Errorf("%w: %s", backend.ErrNotFound, id)
		}
		return domain.Bookmark{}, fmt.Errorf("failed to get bookmark: %w", err)
	}

	var b domain.Bookmark
	if err := json.Unmarshal(data, &b); err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to unmarshal bookmark: %w", err)
	}
	return b, nil
}
