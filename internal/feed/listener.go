package feed

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/marksync/internal/backend"
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/metrics"
)

// Target receives remote row changes.
type Target interface {
	Insert(b domain.Bookmark) bool
	Remove(id string) bool
}

// Listener keeps a change feed subscription for the signed-in user and
// forwards every change to its target.
type Listener struct {
	feed   backend.ChangeFeed
	target Target
	log    logger.Logger

	mu     sync.Mutex
	userID string
	sub    backend.Subscription
	closed bool
}

func NewListener(feed backend.ChangeFeed, target Target, log logger.Logger) *Listener {
	return &Listener{feed: feed, target: target, log: log}
}

// Switch subscribes for user, releasing any previous subscription first.
// A nil user only releases. Failures are logged and counted; the caller
// retries by switching again.
func (l *Listener) Switch(ctx context.Context, user *domain.User) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.release()

	if user == nil {
		return nil
	}

	userID := user.ID
	sub, err := l.feed.SubscribeToChanges(ctx, userID,
		func(b domain.Bookmark) {
			metrics.FeedEvents.WithLabelValues(backend.EventInsert).Inc()
			l.target.Insert(b)
		},
		func(id string) {
			metrics.FeedEvents.WithLabelValues(backend.EventDelete).Inc()
			l.target.Remove(id)
		},
	)
	if err != nil {
		metrics.FeedSubscribeFailures.Inc()
		l.log.Error("change feed subscription failed",
			logger.String("user", userID),
			logger.Error(err))
		return err
	}

	l.userID = userID
	l.sub = sub
	l.log.Debug("change feed subscribed", logger.String("user", userID))
	return nil
}

// UserID returns the user currently subscribed, empty when none.
func (l *Listener) UserID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.userID
}

// Close releases the subscription. Later calls to Switch are no-ops.
func (l *Listener) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.release()
	l.closed = true
}

func (l *Listener) release() {
	if l.sub == nil {
		return
	}
	if err := l.sub.Unsubscribe(); err != nil {
		l.log.Warn("change feed unsubscribe failed",
			logger.String("user", l.userID),
			logger.Error(err))
	}
	l.sub = nil
	l.userID = ""
}
