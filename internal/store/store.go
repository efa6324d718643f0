package store

import (
	"context"

	"cipherchat/internal/conversation"
	"cipherchat/internal/model"
)

// Store holds conversation history for the lifetime of the relay process.
// Histories are append-only and ordered by arrival at the relay; an envelope
// id appears at most once per conversation.
type Store interface {
	// Append adds env to its conversation's history. It returns false
	// without modifying anything when the conversation already holds an
	// envelope with the same id.
	Append(ctx context.Context, env model.Envelope) (bool, error)

	// History returns the stored envelopes for one conversation in
	// arrival order.
	History(ctx context.Context, id conversation.ID) ([]model.Envelope, error)

	// ForUser returns every conversation history the user participates in.
	ForUser(ctx context.Context, userID string) (model.InitialMessages, error)
}
