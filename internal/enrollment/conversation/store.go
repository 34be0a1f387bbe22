// Package conversation owns the per-conversation slot-filling lifecycle: the
// state store, turn serialization and the HandleTurn pipeline that drives
// extraction, merge, confirmation and query execution.
package conversation

import (
	"context"

	"enrollment-chat/internal/enrollment/schema"
)

// StoredState is the persisted envelope for one conversation: the
// accumulated state plus the slot the system asked for last.
type StoredState struct {
	State     schema.ConversationState `json:"state"`
	AskingFor schema.AskingFor         `json:"asking_for"`
}

// Store abstracts conversation state persistence. Implementations must be
// safe for concurrent use. Get returns (nil, nil) for an unknown id.
type Store interface {
	Get(ctx context.Context, conversationID string) (*StoredState, error)
	Put(ctx context.Context, conversationID string, state *StoredState) error
	// Delete removes the conversation and reports whether it existed.
	Delete(ctx context.Context, conversationID string) (bool, error)
}
