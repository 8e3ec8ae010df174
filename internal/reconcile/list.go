package reconcile

import (
	"sync"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/envelope"
)

// List is the single owner of a view's reconciled bookmarks.
// Producers submit envelopes or feed rows; nothing else reaches the entries.
type List struct {
	mu       sync.RWMutex
	state    State
	version  uint64    // bumped whenever the visible entries change
	loadedAt time.Time // timestamp of the initial load
	changes  chan struct{}
}

// Snapshot is a point-in-time copy of the entries.
type Snapshot struct {
	Entries []domain.Bookmark
	Version uint64
}

// NewList creates an empty list.
func NewList() *List {
	return &List{
		state:   State{Settled: map[string]struct{}{}},
		changes: make(chan struct{}, 1),
	}
}

// Apply folds an envelope. It returns whether the entries changed and the
// version after the fold.
func (l *List) Apply(e envelope.Envelope) (bool, uint64) {
	return l.fold(func(s State) (State, bool) { return ApplyEnvelope(s, e) })
}

// Insert folds a remote insert.
func (l *List) Insert(b domain.Bookmark) bool {
	changed, _ := l.fold(func(s State) (State, bool) { return ApplyInsert(s, b) })
	return changed
}

// Remove folds a remote delete.
func (l *List) Remove(id string) bool {
	changed, _ := l.fold(func(s State) (State, bool) { return ApplyDelete(s, id) })
	return changed
}

// Seed merges the initial load.
func (l *List) Seed(rows []domain.Bookmark) {
	l.fold(func(s State) (State, bool) { return Seed(s, rows), true })

	l.mu.Lock()
	l.loadedAt = time.Now()
	l.mu.Unlock()
}

func (l *List) fold(f func(State) (State, bool)) (bool, uint64) {
	l.mu.Lock()
	next, changed := f(l.state)
	l.state = next
	if changed {
		l.version++
	}
	version := l.version
	l.mu.Unlock()

	if changed {
		l.notify()
	}
	return changed, version
}

func (l *List) notify() {
	select {
	case l.changes <- struct{}{}:
	default:
		// a wake-up is already pending
	}
}

// Changes delivers a coalesced signal after the entries change.
func (l *List) Changes() <-chan struct{} {
	return l.changes
}

// Snapshot returns a copy of the entries with the current version.
func (l *List) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]domain.Bookmark, len(l.state.Entries))
	copy(entries, l.state.Entries)
	return Snapshot{Entries: entries, Version: l.version}
}

// Capture returns the entry with id together with a snapshot of the whole
// list, taken under one lock.
func (l *List) Capture(id string) (domain.Bookmark, Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]domain.Bookmark, len(l.state.Entries))
	copy(entries, l.state.Entries)
	snap := Snapshot{Entries: entries, Version: l.version}

	for _, b := range entries {
		if b.ID == id {
			return b, snap, true
		}
	}
	return domain.Bookmark{}, snap, false
}

// Restore undoes a failed optimistic delete of b.
//
// When the delete (applied at version appliedAt) was the only fold since
// snap was taken and nothing has changed since, the snapshot is reinstated
// verbatim. Otherwise b is reinserted with the delete_rollback fold so
// concurrent folds survive.
func (l *List) Restore(snap Snapshot, b domain.Bookmark, appliedAt uint64) {
	l.mu.Lock()
	if l.version == appliedAt && snap.Version+1 == appliedAt {
		entries := make([]domain.Bookmark, len(snap.Entries))
		copy(entries, snap.Entries)
		l.state = State{Entries: entries, Settled: l.state.Settled}
		l.version++
		l.mu.Unlock()
		l.notify()
		return
	}
	l.mu.Unlock()

	l.Apply(envelope.DeleteRollback(b))
}

// Entries returns a copy of all entries, newest first.
func (l *List) Entries() []domain.Bookmark {
	return l.Snapshot().Entries
}

// Filter returns the entries matching query. The list is not modified.
func (l *List) Filter(query string) []domain.Bookmark {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Filter(l.state.Entries, query)
}

// Count returns the number of entries.
func (l *List) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.state.Entries)
}

// Version returns the current version.
func (l *List) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.version
}

// LoadedAt returns the time of the initial load, zero before it completes.
func (l *List) LoadedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.loadedAt
}
