package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/backend"
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// SubscribeToChanges listens on the user's change channel. It returns once
// Redis has confirmed the subscription.
func (s *Store) SubscribeToChanges(ctx context.Context, userID string, onInsert func(domain.Bookmark), onDelete func(string)) (backend.Subscription, error) {
	channel := ChangesChannel(userID)
	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	sub := &subscription{
		pubsub: pubsub,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go sub.run(ctx, func(payload string) {
		var c backend.Change
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			s.log.Warn("ignoring malformed change",
				logger.String("channel", channel),
				logger.Error(err))
			return
		}
		c.Dispatch(userID, onInsert, onDelete)
	})

	return sub, nil
}

type subscription struct {
	pubsub *redis.PubSub
	once   sync.Once
	err    error
	stop   chan struct{}
	done   chan struct{}
}

func (s *subscription) run(ctx context.Context, handle func(string)) {
	defer close(s.done)

	msgs := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.close()
			return
		case <-s.stop:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			handle(msg.Payload)
		}
	}
}

func (s *subscription) close() error {
	s.once.Do(func() {
		close(s.stop)
		s.err = s.pubsub.Close()
	})
	return s.err
}

// Unsubscribe stops delivery and waits for the receive loop to exit.
// No callback runs after it returns.
func (s *subscription) Unsubscribe() error {
	err := s.close()
	<-s.done
	return err
}
