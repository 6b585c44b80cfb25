// Package session provides the conversation data model for the Pilot loop:
// the ordered message transcript, tool calls, and the persisted step state.
package session

import "github.com/google/uuid"

// Role identifies the author of a message in the transcript.
type Role string

const (
	// RoleHuman is a message authored by the human operator.
	RoleHuman Role = "human"
	// RoleAssistant is a message authored by the planner.
	RoleAssistant Role = "assistant"
	// RoleTool is the result of a single tool invocation.
	RoleTool Role = "tool"
)

// validRoles is the set of valid message roles.
var validRoles = map[Role]bool{
	RoleHuman:     true,
	RoleAssistant: true,
	RoleTool:      true,
}

// IsValid returns true if the role is a valid value.
func (r Role) IsValid() bool {
	return validRoles[r]
}

// ToolCall is a planner-issued request to invoke a specific tool.
type ToolCall struct {
	// ID uniquely identifies the call within its message.
	ID string `json:"id"`

	// Name is the registered tool name.
	Name string `json:"name"`

	// Args are the tool arguments as decoded by the planner.
	Args map[string]any `json:"args,omitempty"`
}

// NewToolCall creates a tool call with a generated ID.
func NewToolCall(name string, args map[string]any) ToolCall {
	return ToolCall{
		ID:   uuid.NewString(),
		Name: name,
		Args: args,
	}
}

// Message is one entry in the conversation transcript. The Role field
// discriminates the variant: assistant messages may carry tool calls, tool
// messages carry the ID of the assistant tool call they answer.
type Message struct {
	// Role discriminates the message variant.
	Role Role `json:"role"`

	// Text is the free-text content of the message.
	Text string `json:"text"`

	// ToolCalls are the tool invocations requested by an assistant message,
	// in the order they must be executed. Empty for other roles.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool message to the assistant tool call it answers.
	// Empty for other roles.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Human creates a human message.
func Human(text string) Message {
	return Message{Role: RoleHuman, Text: text}
}

// Assistant creates an assistant message with zero or more tool calls.
func Assistant(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Text: text, ToolCalls: calls}
}

// ToolResult creates a tool message answering the given tool call ID.
func ToolResult(callID, text string) Message {
	return Message{Role: RoleTool, Text: text, ToolCallID: callID}
}

// HasToolCalls returns true if the message carries at least one tool call.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}
