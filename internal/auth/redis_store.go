package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/logger"
)

const (
	keyPrefixRevoked = "marksync:session:revoked:"
	keyPrefixEvents  = "marksync:session:"
)

// RevokedKey returns the marker key of a revoked session
func RevokedKey(sessionID string) string {
	return keyPrefixRevoked + sessionID
}

// EventsChannel returns the Pub/Sub channel of a user's session events
func EventsChannel(userID string) string {
	return keyPrefixEvents + userID
}

// RedisStore keeps revocations as expiring keys and fans session events
// out over Pub/Sub.
type RedisStore struct {
	client *redis.Client
	log    logger.Logger
}

func NewRedisStore(client *redis.Client, log logger.Logger) *RedisStore {
	return &RedisStore{client: client, log: log}
}

func (s *RedisStore) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		// already expired, nothing to remember
		return nil
	}
	if err := s.client.Set(ctx, RevokedKey(sessionID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store revocation: %w", err)
	}
	return nil
}

func (s *RedisStore) Revoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, RevokedKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read revocation: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Publish(ctx context.Context, userID string, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}
	if err := s.client.Publish(ctx, EventsChannel(userID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error) {
	pubsub := s.client.Subscribe(ctx, EventsChannel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to session events: %w", err)
	}

	out := make(chan Event, 4)
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(out)

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					s.log.Warn("ignoring malformed session event", logger.Error(err))
					continue
				}
				select {
				case out <- e:
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			_ = pubsub.Close()
			<-done
		})
	}
	return out, cancel, nil
}
