// Package memorystore defines the short-term conversation memory port.
//
// Memory is recency-bounded and non-durable by contract: the orchestrator
// re-derives long-term grounding from the vector store on every turn, so
// losing this buffer on restart is acceptable. Implementations must
// serialize mutations per conversation id.
package memorystore

import (
	"context"

	"github.com/stayline/concierge/internal/domain/conversation"
)

// Store is the port interface for per-conversation message buffers.
type Store interface {
	// Append adds a message to the end of the conversation's buffer,
	// creating the buffer on first use.
	Append(ctx context.Context, conversationID string, msg conversation.Message) error

	// GetRecent returns the most recent limit messages in their original
	// order. A missing conversation yields an empty slice.
	GetRecent(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error)

	// Replace swaps the conversation's buffer wholesale.
	Replace(ctx context.Context, conversationID string, msgs []conversation.Message) error
}
