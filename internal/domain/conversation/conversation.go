// Package conversation provides the domain model for concierge chat turns.
package conversation

// Roles for messages in a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message is a single entry in a conversation. The sequence within a
// conversation is append-only and never reordered.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is a structured action requested by the model. Arguments must
// validate against the named tool's schema before execution.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult pairs a tool call with its outcome. Error is set instead of
// Result when the call failed; a failed call never aborts the turn.
type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TurnRequest is one incoming guest/staff utterance.
type TurnRequest struct {
	TenantID    string   `json:"tenant_id"`
	UserID      string   `json:"user_id"`
	SessionID   string   `json:"session_id,omitempty"`
	Text        string   `json:"text"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// TurnResult is the orchestrator's reply for one turn.
type TurnResult struct {
	Reply       string       `json:"reply"`
	ToolResults []ToolResult `json:"tool_results"`
}

// ResolveID returns the conversation id for a turn: the explicit session
// id when supplied, otherwise tenant and user joined with a dash.
func (r *TurnRequest) ResolveID() string {
	if r.SessionID != "" {
		return r.SessionID
	}
	return r.TenantID + "-" + r.UserID
}
