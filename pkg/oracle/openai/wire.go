package openai

import (
	"encoding/json"

	"github.com/aretw0/attest/pkg/domain"
)

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Tools          []tool          `json:"tools,omitempty"`
	ToolChoice     string          `json:"tool_choice,omitempty"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatResponse struct {
	Choices []struct {
		Message responseMessage `json:"message"`
	} `json:"choices"`
}

type responseMessage struct {
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls"`
}

func toMessages(conv domain.Conversation) []message {
	out := make([]message, 0, len(conv))
	for _, turn := range conv {
		m := message{Role: string(turn.Role), Content: turn.Content}
		switch turn.Role {
		case domain.RoleAssistant:
			if turn.ToolCall != nil {
				args, _ := json.Marshal(turn.ToolCall.Args)
				if turn.ToolCall.Args == nil {
					args = []byte("{}")
				}
				m.ToolCalls = []toolCall{{
					ID:       turn.ToolCall.ID,
					Type:     "function",
					Function: functionCall{Name: turn.ToolCall.Name, Arguments: string(args)},
				}}
			}
		case domain.RoleTool:
			m.ToolCallID = turn.ToolCallID
			m.Name = turn.ToolName
		}
		out = append(out, m)
	}
	return out
}

func toTools(defs []domain.ToolDefinition) []tool {
	out := make([]tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, tool{
			Type: "function",
			Function: toolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters.JSONSchema(),
			},
		})
	}
	return out
}

// decodeMessage turns the raw answer into the closed OracleResponse union.
// Only the first tool call is kept.
func decodeMessage(m responseMessage) domain.OracleResponse {
	if len(m.ToolCalls) == 0 {
		return domain.NoAction{Reply: m.Content}
	}

	first := m.ToolCalls[0]
	call := domain.ToolCall{ID: first.ID, Name: first.Function.Name, Args: map[string]any{}}
	if first.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(first.Function.Arguments), &call.Args); err != nil {
			call.Args = nil
			call.ArgsError = "malformed tool arguments: " + err.Error()
		}
	}
	return domain.ProposedToolCall{
		Call:    call,
		Reply:   m.Content,
		Dropped: len(m.ToolCalls) - 1,
	}
}
