package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OptimisticPrefix marks ids synthesized locally before the backend confirms a create.
const OptimisticPrefix = "optimistic-"

// Bookmark represents a saved link owned by a single user.
//
// The JSON shape matches the storage row, so the same value travels through
// the backend, the change feed and the broadcast channel unchanged.
type Bookmark struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// ID is the durable identifier assigned by the backend, or
	// "optimistic-<mutationId>" while the create is in flight.
	ID string `json:"id"`

	// UserID is the owner. Every operation is scoped to the signed-in user.
	UserID string `json:"user_id"`

	// ─────────────────────────────
	// Content
	// ─────────────────────────────

	Title string `json:"title"`

	// URL always carries a scheme once it reaches storage.
	// Example: https://nextjs.org/docs
	URL string `json:"url"`

	// ─────────────────────────────
	// Metadata
	// ─────────────────────────────

	// CreatedAt is a local clock reading for optimistic entries and is
	// replaced by the server value on confirmation.
	CreatedAt time.Time `json:"created_at"`

	// ClientMutationID correlates an optimistic entry with its later
	// confirmation or failure. Empty for rows from the feed.
	ClientMutationID string `json:"client_mutation_id,omitempty"`
}

// UnmarshalJSON accepts the id as a string or a number. Rows keyed by a
// bigint arrive with numeric ids.
func (b *Bookmark) UnmarshalJSON(data []byte) error {
	type row Bookmark
	var raw struct {
		row
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := ParseID(raw.ID)
	if err != nil {
		return err
	}
	*b = Bookmark(raw.row)
	b.ID = id
	return nil
}

// ParseID decodes a JSON id given as a string or a number. Missing and
// null ids decode to "".
func ParseID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid id %s", raw)
	}
	return n.String(), nil
}

// IsOptimistic reports whether the bookmark is still a local placeholder.
func (b Bookmark) IsOptimistic() bool {
	return IsOptimistic(b.ID)
}

// OptimisticID returns the placeholder id for a mutation.
func OptimisticID(mutationID string) string {
	return OptimisticPrefix + mutationID
}

// IsOptimistic reports whether id is a placeholder id.
func IsOptimistic(id string) bool {
	return strings.HasPrefix(id, OptimisticPrefix)
}

// Matches reports whether the bookmark title or URL contains query,
// ignoring case. An empty query matches everything.
func (b Bookmark) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(b.Title), q) ||
		strings.Contains(strings.ToLower(b.URL), q)
}

// User is the signed-in account a view belongs to.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}
