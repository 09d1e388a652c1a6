// Package llms provides the chat-completion client used by the planner and
// the MCP agent loop. Message history is a normalized tagged sequence
// (system, user, assistant-with-tool-calls, tool-result) rather than a flat
// record with nullable fields.
package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FinishReason explains why the model stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
	FinishOther     FinishReason = "other"
)

// ChatMessage is one entry of a conversation buffer. Exactly one shape is
// meaningful per role: tool messages carry ToolCallID and Content, assistant
// messages may carry ToolCalls, everything else is plain Content.
type ChatMessage struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition describes a tool schema offered to the model.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Completion is the model's reply to one Generate call.
type Completion struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	TokensUsed   int
}

// Provider is a chat-completion backend.
type Provider interface {
	// Generate runs one completion over the full message buffer, offering
	// the given tool schemas.
	Generate(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (*Completion, error)

	// ModelName reports the configured model.
	ModelName() string
}

// SystemMessage builds a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// ToolResultMessage builds the tool-role reply to a single tool call.
func ToolResultMessage(toolCallID, content string) ChatMessage {
	return ChatMessage{Role: RoleTool, ToolCallID: toolCallID, Content: content}
}

// APIKeyRole selects which per-role environment variable holds the key.
type APIKeyRole string

const (
	APIKeyPlanner APIKeyRole = "LLM_PLANNER_API_KEY"
	APIKeyMCP     APIKeyRole = "LLM_MCP_API_KEY"
	APIKeyA2A     APIKeyRole = "LLM_A2A_API_KEY"
)

// APIKeyFromEnv resolves the API key for a role. A missing key is a
// configuration error, fatal at startup.
func APIKeyFromEnv(role APIKeyRole) (string, error) {
	key := os.Getenv(string(role))
	if key == "" {
		return "", fmt.Errorf("llms: environment variable %s is not set", role)
	}
	return key, nil
}
