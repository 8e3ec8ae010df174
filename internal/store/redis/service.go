package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/backend"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

var _ backend.Service = (*Store)(nil)

// Store is the Redis implementation of the bookmark backend.
type Store struct {
	client *redis.Client
	log    logger.Logger
	now    func() time.Time
}

// NewStore creates a new Redis store. The client is owned by the caller.
func NewStore(client *redis.Client, log logger.Logger) *Store {
	return &Store{
		client: client,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ping checks that Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close is a no-op; the shared client is closed by its owner.
func (s *Store) Close() error {
	return nil
}
