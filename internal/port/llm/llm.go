// Package llm defines the chat completion port (interface).
package llm

import (
	"context"

	"github.com/stayline/concierge/internal/domain/conversation"
)

// ToolDefinition describes a callable tool to the model. Parameters is a
// JSON-schema shaped object ({"type":"object","properties":...}).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatRequest is one completion call.
type ChatRequest struct {
	Messages    []conversation.Message
	Tools       []ToolDefinition
	Temperature *float64
	MaxTokens   *int
}

// ChatResponse carries the reply text and any tool calls the model
// requested, in the model's output order.
type ChatResponse struct {
	Reply     string
	ToolCalls []conversation.ToolCall
}

// Client is the port interface for LLM chat completions.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
