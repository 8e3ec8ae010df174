package envelope

import (
	"strings"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// Type is the closed set of mutation lifecycle events exchanged between tabs.
type Type string

const (
	TypeUnknown        Type = ""
	TypeAddOptimistic  Type = "add_optimistic"
	TypeAddConfirmed   Type = "add_confirmed"
	TypeAddFailed      Type = "add_failed"
	TypeDelete         Type = "delete"
	TypeDeleteRollback Type = "delete_rollback"
)

// legacyPrefix is carried by messages from the original browser client.
const legacyPrefix = "bookmark_"

// ParseType maps a wire tag to a Type. Unrecognized tags yield TypeUnknown.
func ParseType(s string) Type {
	switch t := Type(strings.TrimPrefix(s, legacyPrefix)); t {
	case TypeAddOptimistic, TypeAddConfirmed, TypeAddFailed, TypeDelete, TypeDeleteRollback:
		return t
	default:
		return TypeUnknown
	}
}

// Envelope describes one step of a create or delete lifecycle.
//
// Envelopes are values: constructors copy the bookmark they are given and
// receivers must not retain the pointer past the fold that consumes it.
type Envelope struct {
	Type   Type
	TabID  string // originating tab, used for self-echo suppression
	UserID string // acting user, used for cross-user isolation

	// MutationID is the correlation id of a create (clientMutationId).
	MutationID string
	// ID is the target of a delete.
	ID string

	Bookmark *domain.Bookmark
}

// AddOptimistic announces a placeholder that is not yet durable.
func AddOptimistic(b domain.Bookmark) Envelope {
	return Envelope{Type: TypeAddOptimistic, MutationID: b.ClientMutationID, Bookmark: &b}
}

// AddConfirmed swaps the placeholder of mutationID for the durable row b.
func AddConfirmed(mutationID string, b domain.Bookmark) Envelope {
	return Envelope{Type: TypeAddConfirmed, MutationID: mutationID, Bookmark: &b}
}

// AddFailed drops the placeholder of mutationID.
func AddFailed(mutationID string) Envelope {
	return Envelope{Type: TypeAddFailed, MutationID: mutationID}
}

// Delete removes the entry with id.
func Delete(id string) Envelope {
	return Envelope{Type: TypeDelete, ID: id}
}

// DeleteRollback reinstates b after a failed durable delete.
func DeleteRollback(b domain.Bookmark) Envelope {
	return Envelope{Type: TypeDeleteRollback, ID: b.ID, Bookmark: &b}
}

// Stamp returns a copy tagged with the originating tab and user.
func (e Envelope) Stamp(tabID, userID string) Envelope {
	e.TabID = tabID
	e.UserID = userID
	return e
}

// CorrelationID is the mutation id for creates and the target id for deletes.
func (e Envelope) CorrelationID() string {
	switch e.Type {
	case TypeAddOptimistic, TypeAddConfirmed, TypeAddFailed:
		return e.MutationID
	case TypeDelete:
		return e.ID
	case TypeDeleteRollback:
		if e.Bookmark != nil {
			return e.Bookmark.ID
		}
	}
	return ""
}

// Valid reports whether the envelope carries the fields its type requires.
func (e Envelope) Valid() bool {
	switch e.Type {
	case TypeAddOptimistic:
		return hasBookmark(e) && (e.MutationID != "" || e.Bookmark.ClientMutationID != "")
	case TypeAddConfirmed, TypeDeleteRollback:
		return hasBookmark(e)
	case TypeAddFailed:
		return e.MutationID != ""
	case TypeDelete:
		return e.ID != ""
	default:
		return false
	}
}

func hasBookmark(e Envelope) bool {
	return e.Bookmark != nil && e.Bookmark.ID != ""
}
