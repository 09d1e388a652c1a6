package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-a2a/maestro/pkg/llms"
	"github.com/maestro-a2a/maestro/pkg/mcp"
)

// scriptedLLM replays a fixed sequence of completions.
type scriptedLLM struct {
	script []llms.Completion
	calls  int
	seen   [][]llms.ChatMessage
}

func (s *scriptedLLM) Generate(ctx context.Context, messages []llms.ChatMessage, tools []llms.ToolDefinition) (*llms.Completion, error) {
	snapshot := make([]llms.ChatMessage, len(messages))
	copy(snapshot, messages)
	s.seen = append(s.seen, snapshot)

	if s.calls >= len(s.script) {
		return nil, fmt.Errorf("scripted LLM exhausted after %d calls", s.calls)
	}
	completion := s.script[s.calls]
	s.calls++
	return &completion, nil
}

func (s *scriptedLLM) ModelName() string { return "scripted" }

// recordingMCP records tool calls and echoes the arguments back.
type recordingMCP struct {
	invocations []string
	failWith    error
}

func (m *recordingMCP) ListTools(ctx context.Context) ([]mcp.ToolInfo, error) {
	return []mcp.ToolInfo{{Name: "echo", Description: "echoes args"}}, nil
}

func (m *recordingMCP) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.Result, error) {
	m.invocations = append(m.invocations, name)
	if m.failWith != nil {
		return nil, m.failWith
	}
	encoded, _ := json.Marshal(args)
	return &mcp.Result{Content: []mcp.Content{{Type: "text", Text: string(encoded)}}}, nil
}

func (m *recordingMCP) Refresh(ctx context.Context) error { return nil }
func (m *recordingMCP) Close() error                      { return nil }

func toolCallCompletion(id string) llms.Completion {
	return llms.Completion{
		FinishReason: llms.FinishToolCalls,
		ToolCalls: []llms.ToolCall{{
			ID:        id,
			Name:      "echo",
			Arguments: json.RawMessage(`{"value":1}`),
		}},
	}
}

func TestRunStopsImmediately(t *testing.T) {
	llm := &scriptedLLM{script: []llms.Completion{
		{FinishReason: llms.FinishStop, Content: "done"},
	}}
	tools := &recordingMCP{}
	loop := NewLoop(llm, tools, Config{SystemPrompt: "be brief", MaxLoops: 5})

	answer, err := loop.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "done", answer)
	assert.Empty(t, tools.invocations)

	transcript := loop.Transcript()
	require.Len(t, transcript, 3)
	assert.Equal(t, llms.RoleSystem, transcript[0].Role)
	assert.Equal(t, llms.RoleUser, transcript[1].Role)
	assert.Equal(t, llms.RoleAssistant, transcript[2].Role)
}

func TestRunToolLoopThenStop(t *testing.T) {
	llm := &scriptedLLM{script: []llms.Completion{
		toolCallCompletion("call_1"),
		{FinishReason: llms.FinishStop, Content: "final answer"},
	}}
	tools := &recordingMCP{}
	loop := NewLoop(llm, tools, Config{MaxLoops: 5})

	answer, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "final answer", answer)
	assert.Equal(t, []string{"echo"}, tools.invocations)

	// Every tool call is answered with exactly one tool message before the
	// next model call sees the buffer.
	secondCall := llm.seen[1]
	last := secondCall[len(secondCall)-1]
	assert.Equal(t, llms.RoleTool, last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
	assert.JSONEq(t, `{"value":1}`, last.Content)
}

func TestRunExceedsMaxLoops(t *testing.T) {
	// Always requests another tool call; the loop must terminate by bound.
	llm := &scriptedLLM{script: []llms.Completion{
		toolCallCompletion("call_1"),
		toolCallCompletion("call_2"),
		toolCallCompletion("call_3"),
		toolCallCompletion("call_4"),
	}}
	tools := &recordingMCP{}
	loop := NewLoop(llm, tools, Config{MaxLoops: 3})

	_, err := loop.Run(context.Background(), "go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded maximum iterations")

	var maxErr *MaxLoopsError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 3, maxErr.MaxLoops)

	// Exactly three tool executions happened.
	assert.Len(t, tools.invocations, 3)
}

func TestRunToolFailureFeedsStructuredError(t *testing.T) {
	llm := &scriptedLLM{script: []llms.Completion{
		toolCallCompletion("call_1"),
		{FinishReason: llms.FinishStop, Content: "recovered"},
	}}
	tools := &recordingMCP{failWith: fmt.Errorf("connection refused")}
	loop := NewLoop(llm, tools, Config{MaxLoops: 5})

	answer, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)

	secondCall := llm.seen[1]
	last := secondCall[len(secondCall)-1]
	assert.Equal(t, llms.RoleTool, last.Role)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(last.Content), &payload))
	assert.Contains(t, payload["error"], "connection refused")
}

func TestRunOtherFinishReasonReturnsContent(t *testing.T) {
	llm := &scriptedLLM{script: []llms.Completion{
		{FinishReason: llms.FinishLength, Content: "truncated output"},
	}}
	loop := NewLoop(llm, &recordingMCP{}, Config{MaxLoops: 5})

	answer, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "truncated output", answer)
}

func TestRunDeterministicTranscriptOnReplay(t *testing.T) {
	script := []llms.Completion{
		toolCallCompletion("call_1"),
		{FinishReason: llms.FinishStop, Content: "done"},
	}

	runOnce := func() []llms.ChatMessage {
		loop := NewLoop(&scriptedLLM{script: script}, &recordingMCP{}, Config{SystemPrompt: "sys", MaxLoops: 5})
		_, err := loop.Run(context.Background(), "go")
		require.NoError(t, err)
		return loop.Transcript()
	}

	first := runOnce()
	second := runOnce()
	assert.Equal(t, first, second)
}
