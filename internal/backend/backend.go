package backend

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// ErrNotFound is returned when a bookmark does not exist or belongs to
// another user.
var ErrNotFound = errors.New("bookmark not found")

// NewBookmark is the payload of a durable insert. MutationID is stored with
// the row so the change feed can correlate it with the pending create.
type NewBookmark struct {
	UserID     string
	Title      string
	URL        string
	MutationID string
}

// Bookmarks is the durable store.
type Bookmarks interface {
	// ListBookmarks returns the user's rows ordered by created_at descending.
	ListBookmarks(ctx context.Context, userID string) ([]domain.Bookmark, error)
	// InsertBookmark persists a row and returns it with its server id.
	InsertBookmark(ctx context.Context, in NewBookmark) (domain.Bookmark, error)
	// DeleteBookmark removes the user's row with id.
	DeleteBookmark(ctx context.Context, userID, id string) error
}

// Subscription is a live change feed registration.
type Subscription interface {
	Unsubscribe() error
}

// ChangeFeed streams row-level changes for one user.
type ChangeFeed interface {
	// SubscribeToChanges calls onInsert and onDelete for every change to the
	// user's rows until the subscription is released or ctx ends.
	SubscribeToChanges(ctx context.Context, userID string, onInsert func(domain.Bookmark), onDelete func(id string)) (Subscription, error)
}

// Service is a complete backend.
type Service interface {
	Bookmarks
	ChangeFeed
	Ping(ctx context.Context) error
	Close() error
}

// Event tags on the change feed.
const (
	EventInsert = "INSERT"
	EventDelete = "DELETE"
)

// Change is the change feed payload shared by the store implementations:
// {"event":"INSERT","new":{...}} or {"event":"DELETE","old":{"id":...}}.
type Change struct {
	Event string           `json:"event"`
	New   *domain.Bookmark `json:"new,omitempty"`
	Old   *ChangeKey       `json:"old,omitempty"`
}

// ChangeKey identifies a deleted row.
type ChangeKey struct {
	ID     string `json:"id"`
	UserID string `json:"user_id,omitempty"`
}

// Dispatch routes a decoded change to the matching callback. Changes for
// other users and incomplete payloads are ignored. It reports whether a
// callback ran.
func (c Change) Dispatch(userID string, onInsert func(domain.Bookmark), onDelete func(string)) bool {
	switch c.Event {
	case EventInsert:
		if c.New == nil || c.New.ID == "" || c.New.UserID != userID {
			return false
		}
		onInsert(*c.New)
		return true
	case EventDelete:
		if c.Old == nil || c.Old.ID == "" {
			return false
		}
		if c.Old.UserID != "" && c.Old.UserID != userID {
			return false
		}
		onDelete(c.Old.ID)
		return true
	default:
		return false
	}
}
