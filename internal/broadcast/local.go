package broadcast

import "context"

// LocalBus delivers messages to subscribers in the same process.
type LocalBus struct {
	subs *fanout
}

// NewLocalBus creates an in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: newFanout()}
}

// Publish hands data to every subscriber before returning.
func (b *LocalBus) Publish(ctx context.Context, data []byte) error {
	if b.subs.isClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := make([]byte, len(data))
	copy(msg, data)
	b.subs.deliver(msg)
	return nil
}

func (b *LocalBus) Subscribe(fn func([]byte)) func() {
	return b.subs.add(fn)
}

func (b *LocalBus) Close() error {
	b.subs.close()
	return nil
}

// Subscribers returns the number of attached handlers.
func (b *LocalBus) Subscribers() int {
	return b.subs.count()
}
