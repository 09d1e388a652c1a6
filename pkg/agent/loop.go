// Package agent implements the bounded LLM-tool reasoning loop used by any
// agent that exposes MCP tools to its model.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/maestro-a2a/maestro/pkg/llms"
	"github.com/maestro-a2a/maestro/pkg/mcp"
)

// DefaultMaxLoops bounds the LLM-tool loop when no limit is configured.
const DefaultMaxLoops = 10

// MaxLoopsError reports a loop that did not converge within its bound.
type MaxLoopsError struct {
	MaxLoops int
}

func (e *MaxLoopsError) Error() string {
	return fmt.Sprintf("agent: exceeded maximum iterations (%d)", e.MaxLoops)
}

// Loop drives a conversation between an LLM and an MCP tool runtime. The
// system prompt is seeded once; each Run appends a user turn and iterates
// until the model stops or MaxLoops is reached. Every tool call emitted by
// the model is answered with exactly one tool-role message before the next
// model call.
type Loop struct {
	llm      llms.Provider
	tools    mcp.Client
	maxLoops int
	messages []llms.ChatMessage
}

// Config configures a Loop.
type Config struct {
	SystemPrompt string
	MaxLoops     int
}

// NewLoop creates a loop over the given model and tool runtime.
func NewLoop(llm llms.Provider, tools mcp.Client, cfg Config) *Loop {
	maxLoops := cfg.MaxLoops
	if maxLoops <= 0 {
		maxLoops = DefaultMaxLoops
	}

	loop := &Loop{
		llm:      llm,
		tools:    tools,
		maxLoops: maxLoops,
	}
	if cfg.SystemPrompt != "" {
		loop.messages = append(loop.messages, llms.SystemMessage(cfg.SystemPrompt))
	}
	return loop
}

// Transcript returns a copy of the conversation buffer.
func (l *Loop) Transcript() []llms.ChatMessage {
	out := make([]llms.ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// Run appends the user message and iterates the LLM-tool loop until the
// model produces a final answer.
func (l *Loop) Run(ctx context.Context, userMessage string) (string, error) {
	l.messages = append(l.messages, llms.UserMessage(userMessage))

	catalog, err := l.toolCatalog(ctx)
	if err != nil {
		return "", fmt.Errorf("agent: loading tool catalog: %w", err)
	}

	for iteration := 0; iteration < l.maxLoops; iteration++ {
		completion, err := l.llm.Generate(ctx, l.messages, catalog)
		if err != nil {
			return "", fmt.Errorf("agent: LLM call failed: %w", err)
		}

		switch completion.FinishReason {
		case llms.FinishStop:
			l.messages = append(l.messages, llms.ChatMessage{
				Role:    llms.RoleAssistant,
				Content: completion.Content,
			})
			return completion.Content, nil

		case llms.FinishToolCalls:
			l.messages = append(l.messages, llms.ChatMessage{
				Role:      llms.RoleAssistant,
				Content:   completion.Content,
				ToolCalls: completion.ToolCalls,
			})
			for _, call := range completion.ToolCalls {
				l.messages = append(l.messages, l.executeToolCall(ctx, call))
			}

		default:
			l.messages = append(l.messages, llms.ChatMessage{
				Role:    llms.RoleAssistant,
				Content: completion.Content,
			})
			return completion.Content, nil
		}
	}

	return "", &MaxLoopsError{MaxLoops: l.maxLoops}
}

// executeToolCall invokes one MCP tool and shapes the tool-role reply.
// Failures become structured errors so the model can react to them.
func (l *Loop) executeToolCall(ctx context.Context, call llms.ToolCall) llms.ChatMessage {
	var args map[string]interface{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			slog.Warn("Tool call arguments are not valid JSON", "tool", call.Name, "error", err)
			return llms.ToolResultMessage(call.ID, errorPayload(fmt.Sprintf("invalid arguments: %v", err)))
		}
	}

	result, err := l.tools.CallTool(ctx, call.Name, args)
	if err != nil {
		slog.Warn("Tool invocation failed", "tool", call.Name, "error", err)
		return llms.ToolResultMessage(call.ID, errorPayload(err.Error()))
	}
	if result.IsError {
		return llms.ToolResultMessage(call.ID, errorPayload(result.ErrorText()))
	}

	return llms.ToolResultMessage(call.ID, string(result.JSONValue()))
}

func (l *Loop) toolCatalog(ctx context.Context) ([]llms.ToolDefinition, error) {
	tools, err := l.tools.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	catalog := make([]llms.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		params := tool.InputSchema
		if params == nil {
			params = map[string]interface{}{"type": "object"}
		}
		catalog = append(catalog, llms.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		})
	}
	return catalog, nil
}

func errorPayload(message string) string {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return `{"error":"internal error"}`
	}
	return string(payload)
}
