// Package mcp provides the Model-Context-Protocol runtime client. It tracks
// the remote tool set of a single MCP server and invokes tools by name.
//
// Transport support:
//   - stdio: subprocess communication via the mcp-go library
//   - sse, streamable-http: JSON-RPC over the retrying HTTP client
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

const protocolVersion = "2024-11-05"

// ToolInfo describes one tool advertised by the server.
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// Content is one entry of a tool result content list.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Result is the outcome of a tool call.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// ErrorText returns the first text content of a failed result.
func (r *Result) ErrorText() string {
	for _, c := range r.Content {
		if c.Text != "" {
			return c.Text
		}
	}
	return "unknown error"
}

// JSONValue flattens the content list into a single JSON value. A single
// text item that parses as JSON passes through raw; any other text is
// quoted; multiple items become an array.
func (r *Result) JSONValue() json.RawMessage {
	texts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Type == "" || c.Type == "text" {
			texts = append(texts, c.Text)
		}
	}

	switch len(texts) {
	case 0:
		return json.RawMessage("null")
	case 1:
		if json.Valid([]byte(texts[0])) {
			return json.RawMessage(texts[0])
		}
		return json.RawMessage(strconv.Quote(texts[0]))
	default:
		encoded, err := json.Marshal(texts)
		if err != nil {
			return json.RawMessage("null")
		}
		return encoded
	}
}

// Client is the MCP operations surface the rest of Maestro consumes.
type Client interface {
	// ListTools returns the currently tracked tool set, connecting and
	// enumerating lazily on first use.
	ListTools(ctx context.Context) ([]ToolInfo, error)

	// CallTool invokes a tool by name with an argument map.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*Result, error)

	// Refresh re-enumerates the remote tool set.
	Refresh(ctx context.Context) error

	// Close releases the underlying transport.
	Close() error
}

// ToolError reports a failed tool invocation.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp: tool %s failed: %s", e.Tool, e.Message)
}
