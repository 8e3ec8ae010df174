package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// DefaultChannelName is the channel shared by every tab of a deployment.
const DefaultChannelName = "smart-bookmarks"

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("broadcast bus closed")

// Bus carries raw messages between the tabs of one deployment.
// Delivery is best effort: no ordering across publishers, no persistence.
type Bus interface {
	Publish(ctx context.Context, data []byte) error
	// Subscribe registers fn for every message published on the bus,
	// including the caller's own. The returned func detaches fn.
	Subscribe(fn func([]byte)) (cancel func())
	Close() error
}

// NewTabID returns a random identifier for one tab view.
func NewTabID() string {
	return uuid.NewString()
}

// fanout is the subscriber registry shared by the bus implementations.
type fanout struct {
	mu     sync.RWMutex
	next   uint64
	subs   map[uint64]func([]byte)
	closed bool
}

func newFanout() *fanout {
	return &fanout{subs: make(map[uint64]func([]byte))}
}

func (f *fanout) add(fn func([]byte)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return func() {}
	}
	id := f.next
	f.next++
	f.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// deliver calls every subscriber outside the lock so a handler may
// subscribe or cancel without deadlocking.
func (f *fanout) deliver(data []byte) {
	f.mu.RLock()
	handlers := make([]func([]byte), 0, len(f.subs))
	for _, fn := range f.subs {
		handlers = append(handlers, fn)
	}
	f.mu.RUnlock()

	for _, fn := range handlers {
		fn(data)
	}
}

func (f *fanout) close() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	f.closed = true
	f.subs = make(map[uint64]func([]byte))
	return true
}

func (f *fanout) isClosed() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.closed
}

func (f *fanout) count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
