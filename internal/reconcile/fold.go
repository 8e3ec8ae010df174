package reconcile

import (
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/envelope"
)

// State is the reconciled view of one user's bookmarks.
//
// Entries are newest-first by arrival: every inserting fold inserts at the
// head. Settled holds the correlation ids of creates that were already
// confirmed or failed, so a late add_optimistic for them is dropped.
//
// A State is never mutated in place; folds return a new one.
type State struct {
	Entries []domain.Bookmark
	Settled map[string]struct{}
}

// present is the single de-duplication predicate shared by every fold:
// an entry with the same id, or with the same non-empty client mutation id,
// already exists.
func present(entries []domain.Bookmark, id, mutationID string) bool {
	for i := range entries {
		if entries[i].ID == id {
			return true
		}
		if mutationID != "" && entries[i].ClientMutationID == mutationID {
			return true
		}
	}
	return false
}

func (s State) settled(mutationID string) bool {
	if mutationID == "" {
		return false
	}
	_, ok := s.Settled[mutationID]
	return ok
}

// admits reports whether b may be inserted at the head.
func (s State) admits(b domain.Bookmark) bool {
	if b.ID == "" || present(s.Entries, b.ID, b.ClientMutationID) {
		return false
	}
	// A placeholder whose create already resolved must never reappear.
	if b.IsOptimistic() && s.settled(b.ClientMutationID) {
		return false
	}
	return true
}

func (s State) prepend(b domain.Bookmark) State {
	entries := make([]domain.Bookmark, 0, len(s.Entries)+1)
	entries = append(entries, b)
	entries = append(entries, s.Entries...)
	return State{Entries: entries, Settled: s.Settled}
}

func (s State) removeWhere(match func(domain.Bookmark) bool) (State, bool) {
	entries := make([]domain.Bookmark, 0, len(s.Entries))
	for _, b := range s.Entries {
		if !match(b) {
			entries = append(entries, b)
		}
	}
	if len(entries) == len(s.Entries) {
		return s, false
	}
	return State{Entries: entries, Settled: s.Settled}, true
}

func (s State) settle(mutationID string) State {
	if mutationID == "" || s.settled(mutationID) {
		return s
	}
	settled := make(map[string]struct{}, len(s.Settled)+1)
	for k := range s.Settled {
		settled[k] = struct{}{}
	}
	settled[mutationID] = struct{}{}
	return State{Entries: s.Entries, Settled: settled}
}

// ApplyEnvelope folds one envelope into s. The bool reports whether the
// visible entries changed. Invalid envelopes are no-ops.
func ApplyEnvelope(s State, e envelope.Envelope) (State, bool) {
	if !e.Valid() {
		return s, false
	}

	switch e.Type {
	case envelope.TypeAddOptimistic:
		b := *e.Bookmark
		if b.ClientMutationID == "" {
			b.ClientMutationID = e.MutationID
		}
		return insert(s, b)

	case envelope.TypeAddConfirmed:
		return confirm(s, e.MutationID, *e.Bookmark)

	case envelope.TypeAddFailed:
		next := s.settle(e.MutationID)
		return next.removeWhere(func(b domain.Bookmark) bool {
			return b.ClientMutationID == e.MutationID
		})

	case envelope.TypeDelete:
		return ApplyDelete(s, e.ID)

	case envelope.TypeDeleteRollback:
		return insert(s, *e.Bookmark)

	default:
		return s, false
	}
}

// ApplyInsert folds a row delivered by the remote change feed. A row that
// carries the correlation id of a pending create replaces its placeholder
// in one step, like add_confirmed.
func ApplyInsert(s State, b domain.Bookmark) (State, bool) {
	if b.ClientMutationID != "" && !b.IsOptimistic() {
		return confirm(s, "", b)
	}
	return insert(s, b)
}

// ApplyDelete removes the entry with id, whatever its origin.
func ApplyDelete(s State, id string) (State, bool) {
	if id == "" {
		return s, false
	}
	return s.removeWhere(func(b domain.Bookmark) bool { return b.ID == id })
}

// Seed merges an initial load into s. Entries that arrived before the load
// completed stay at the head; loaded rows follow in their given order and
// are skipped when already present. A loaded row that settles a pending
// create takes its placeholder's slot.
func Seed(s State, rows []domain.Bookmark) State {
	next := State{
		Entries: make([]domain.Bookmark, 0, len(s.Entries)+len(rows)),
		Settled: s.Settled,
	}
	next.Entries = append(next.Entries, s.Entries...)
	for _, b := range rows {
		if mutationID := b.ClientMutationID; mutationID != "" && !b.IsOptimistic() {
			b.ClientMutationID = ""
			next = next.settle(mutationID)
			if next.swapPlaceholder(mutationID, b) {
				continue
			}
			next, _ = next.removeWhere(func(e domain.Bookmark) bool {
				return e.ClientMutationID == mutationID
			})
		}
		if next.admits(b) {
			next.Entries = append(next.Entries, b)
		}
	}
	return next
}

// swapPlaceholder replaces the first entry carrying mutationID with b in
// place. Only used on entry slices the caller owns.
func (s State) swapPlaceholder(mutationID string, b domain.Bookmark) bool {
	if present(s.Entries, b.ID, "") {
		return false
	}
	for i := range s.Entries {
		if s.Entries[i].ClientMutationID == mutationID {
			s.Entries[i] = b
			return true
		}
	}
	return false
}

func insert(s State, b domain.Bookmark) (State, bool) {
	if !s.admits(b) {
		return s, false
	}
	return s.prepend(b), true
}

// confirm drops every entry correlated with mutationID and inserts the
// durable row in the same step, so no observer sees both or neither.
func confirm(s State, mutationID string, b domain.Bookmark) (State, bool) {
	if mutationID == "" {
		mutationID = b.ClientMutationID
	}
	b.ClientMutationID = ""

	next, removed := s, false
	if mutationID != "" {
		next = next.settle(mutationID)
		next, removed = next.removeWhere(func(e domain.Bookmark) bool {
			return e.ClientMutationID == mutationID
		})
	}
	if present(next.Entries, b.ID, "") {
		return next, removed
	}
	return next.prepend(b), true
}

// Filter returns the entries matching query without touching the list.
func Filter(entries []domain.Bookmark, query string) []domain.Bookmark {
	out := make([]domain.Bookmark, 0, len(entries))
	for _, b := range entries {
		if b.Matches(query) {
			out = append(out, b)
		}
	}
	return out
}
