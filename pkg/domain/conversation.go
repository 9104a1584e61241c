package domain

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one message exchanged with the reasoning oracle.
// Assistant turns carry the proposed ToolCall; tool turns carry the
// result as JSON in Content and reference the call via ToolCallID.
type Turn struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content,omitempty"`
	ToolCall   *ToolCall `json:"tool_call,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
}

// Conversation is the ordered turn list owned by a single loop invocation.
type Conversation []Turn

// NewConversation seeds a conversation with the instruction and context turns.
func NewConversation(instruction, context string) Conversation {
	return Conversation{
		{Role: RoleSystem, Content: instruction},
		{Role: RoleUser, Content: context},
	}
}

// Clone returns a copy safe to hand to a collaborator.
func (c Conversation) Clone() Conversation {
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}
