package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// wireMessage is the broadcast channel shape:
// {type, tabId, userId, mutationId?, id?, bookmark?}
type wireMessage struct {
	Type       string           `json:"type"`
	TabID      string           `json:"tabId"`
	UserID     string           `json:"userId"`
	MutationID string           `json:"mutationId,omitempty"`
	ID         wireID           `json:"id,omitempty"`
	Bookmark   *domain.Bookmark `json:"bookmark,omitempty"`
}

// wireID is encoded as a string and decoded from a string or a number.
type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	s, err := domain.ParseID(data)
	if err != nil {
		return err
	}
	*id = wireID(s)
	return nil
}

// Encode serializes an envelope for the broadcast channel.
func Encode(e Envelope) ([]byte, error) {
	if e.Type == TypeUnknown {
		return nil, fmt.Errorf("cannot encode envelope without type")
	}
	data, err := json.Marshal(wireMessage{
		Type:       string(e.Type),
		TabID:      e.TabID,
		UserID:     e.UserID,
		MutationID: e.MutationID,
		ID:         wireID(e.ID),
		Bookmark:   e.Bookmark,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses a broadcast message. ok is false for anything that must be
// ignored: non-objects, unknown types and messages missing the correlation
// fields their type requires. Ids may be strings or numbers.
func Decode(data []byte) (Envelope, bool) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Envelope{}, false
	}

	e := Envelope{
		Type:       ParseType(msg.Type),
		TabID:      msg.TabID,
		UserID:     msg.UserID,
		MutationID: msg.MutationID,
		ID:         string(msg.ID),
		Bookmark:   msg.Bookmark,
	}

	// An optimistic bookmark and its envelope share one correlation id.
	if e.Type == TypeAddOptimistic && e.Bookmark != nil {
		if e.MutationID == "" {
			e.MutationID = e.Bookmark.ClientMutationID
		}
		if e.Bookmark.ClientMutationID == "" {
			e.Bookmark.ClientMutationID = e.MutationID
		}
	}

	if !e.Valid() {
		return Envelope{}, false
	}
	return e, true
}
