package broadcast

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// RedisBus shares one Redis Pub/Sub channel between every process of a
// deployment. Each process holds a single subscription and fans messages
// out to its local tabs.
type RedisBus struct {
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
	subs    *fanout
	log     logger.Logger
	done    chan struct{}
}

// NewRedisBus subscribes to channel and starts the receive loop. It returns
// once Redis has confirmed the subscription.
func NewRedisBus(ctx context.Context, client *redis.Client, channel string, log logger.Logger) (*RedisBus, error) {
	if channel == "" {
		channel = DefaultChannelName
	}

	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to broadcast channel %s: %w", channel, err)
	}

	b := &RedisBus{
		client:  client,
		channel: channel,
		pubsub:  pubsub,
		subs:    newFanout(),
		log:     log,
		done:    make(chan struct{}),
	}
	go b.loop()

	log.Info("broadcast channel subscribed", logger.String("channel", channel))
	return b, nil
}

func (b *RedisBus) loop() {
	defer close(b.done)

	// Channel is closed by pubsub.Close.
	for msg := range b.pubsub.Channel() {
		b.subs.deliver([]byte(msg.Payload))
	}
}

func (b *RedisBus) Publish(ctx context.Context, data []byte) error {
	if b.subs.isClosed() {
		return ErrClosed
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", b.channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(fn func([]byte)) func() {
	return b.subs.add(fn)
}

// Close drops the Redis subscription and waits for the receive loop.
func (b *RedisBus) Close() error {
	if !b.subs.close() {
		return nil
	}
	err := b.pubsub.Close()
	<-b.done
	if err != nil {
		return fmt.Errorf("failed to close broadcast subscription: %w", err)
	}
	return nil
}

// Channel returns the Redis channel name.
func (b *RedisBus) Channel() string {
	return b.channel
}
