package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a single-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	revoked  map[string]time.Time
	watchers map[string]map[chan Event]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		revoked:  make(map[string]time.Time),
		watchers: make(map[string]map[chan Event]struct{}),
	}
}

func (s *MemoryStore) Revoke(_ context.Context, sessionID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[sessionID] = until
	return nil
}

func (s *MemoryStore) Revoked(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.revoked[sessionID]
	if !ok {
		return false, nil
	}
	if time.Now().After(until) {
		delete(s.revoked, sessionID)
		return false, nil
	}
	return true, nil
}

// Publish drops events for watchers whose buffer is full.
func (s *MemoryStore) Publish(_ context.Context, userID string, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.watchers[userID] {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error) {
	ch := make(chan Event, 4)

	s.mu.Lock()
	if s.watchers[userID] == nil {
		s.watchers[userID] = make(map[chan Event]struct{})
	}
	s.watchers[userID][ch] = struct{}{}
	s.mu.Unlock()

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			s.mu.Lock()
			delete(s.watchers[userID], ch)
			if len(s.watchers[userID]) == 0 {
				delete(s.watchers, userID)
			}
			s.mu.Unlock()
			close(ch)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()

	return ch, cancel, nil
}
