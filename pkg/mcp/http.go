package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maestro-a2a/maestro/pkg/httpclient"
)

// DefaultSSETimeout bounds reading a single SSE response.
const DefaultSSETimeout = 5 * time.Minute

// HTTPConfig configures an HTTP-transport MCP client.
type HTTPConfig struct {
	Name       string
	URL        string
	MaxRetries int
	SSETimeout time.Duration
}

// HTTPClient is an MCP client over the sse/streamable-http transports.
// Connection state (session id, tool set) is guarded for concurrent use.
type HTTPClient struct {
	cfg    HTTPConfig
	client *httpclient.Client

	mu        sync.RWMutex
	tools     []ToolInfo
	connected bool

	sessionMu sync.RWMutex
	sessionID string
}

// NewHTTPClient creates an MCP client for the server at cfg.URL.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("mcp: server URL is required")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SSETimeout == 0 {
		cfg.SSETimeout = DefaultSSETimeout
	}

	return &HTTPClient{
		cfg: cfg,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithBaseDelay(2*time.Second),
		),
	}, nil
}

// ListTools returns the tracked tool set, connecting lazily.
func (c *HTTPClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	c.mu.RLock()
	if c.connected {
		tools := make([]ToolInfo, len(c.tools))
		copy(tools, c.tools)
		c.mu.RUnlock()
		return tools, nil
	}
	c.mu.RUnlock()

	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	tools := make([]ToolInfo, len(c.tools))
	copy(tools, c.tools)
	return tools, nil
}

// Refresh initializes the session if needed and re-enumerates tools.
func (c *HTTPClient) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		initResp, err := c.rpc(ctx, "initialize", map[string]interface{}{
			"protocolVersion": protocolVersion,
			"clientInfo": map[string]interface{}{
				"name":    "maestro",
				"version": "1.0",
			},
			"capabilities": map[string]interface{}{},
		})
		if err != nil {
			return fmt.Errorf("mcp: initialize failed: %w", err)
		}
		if initResp.Error != nil {
			return fmt.Errorf("mcp: initialize error: %s", initResp.Error.Message)
		}
	}

	listResp, err := c.rpc(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("mcp: tools/list failed: %w", err)
	}
	if listResp.Error != nil {
		return fmt.Errorf("mcp: tools/list error: %s", listResp.Error.Message)
	}

	tools, err := parseToolList(listResp.Result)
	if err != nil {
		return err
	}

	c.tools = tools
	c.connected = true

	slog.Info("Connected to MCP server",
		"name", c.cfg.Name,
		"url", c.cfg.URL,
		"tools", len(tools),
	)
	return nil
}

// CallTool invokes a remote tool by name.
func (c *HTTPClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*Result, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	resp, err := c.rpc(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp: calling %s: %w", name, err)
	}
	if resp.Error != nil {
		return nil, &ToolError{Tool: name, Message: resp.Error.Message}
	}

	return parseCallResult(resp.Result)
}

// Close releases the HTTP transport. Nothing to tear down beyond state.
func (c *HTTPClient) Close() error {
	c.mu.Lock()
	c.connected = false
	c.tools = nil
	c.mu.Unlock()

	c.sessionMu.Lock()
	c.sessionID = ""
	c.sessionMu.Unlock()
	return nil
}

// JSON-RPC plumbing.

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *HTTPClient) rpc(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	c.sessionMu.RLock()
	sessionID := c.sessionID
	c.sessionMu.RUnlock()
	if sessionID != "" {
		req.Header.Set("mcp-session-id", sessionID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if newSessionID := resp.Header.Get("mcp-session-id"); newSessionID != "" {
		c.sessionMu.Lock()
		c.sessionID = newSessionID
		c.sessionMu.Unlock()
	}

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return c.readSSE(resp.Body)
	}

	var parsed rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &parsed, nil
}

// readSSE extracts the first complete JSON-RPC message from an SSE stream.
func (c *HTTPClient) readSSE(body io.Reader) (*rpcResponse, error) {
	type outcome struct {
		resp *rpcResponse
		err  error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		reader := bufio.NewReader(body)
		var data strings.Builder

		flush := func() *rpcResponse {
			if data.Len() == 0 {
				return nil
			}
			var parsed rpcResponse
			if err := json.Unmarshal([]byte(data.String()), &parsed); err == nil {
				return &parsed
			}
			data.Reset()
			return nil
		}

		for {
			line, err := reader.ReadString('\n')
			trimmed := strings.TrimSpace(line)

			if trimmed == "" {
				if parsed := flush(); parsed != nil {
					resultCh <- outcome{resp: parsed}
					return
				}
			} else if after, found := strings.CutPrefix(trimmed, "data:"); found {
				data.WriteString(strings.TrimSpace(after))
			}

			if err != nil {
				if parsed := flush(); parsed != nil {
					resultCh <- outcome{resp: parsed}
					return
				}
				resultCh <- outcome{err: fmt.Errorf("SSE stream ended without a complete message")}
				return
			}
		}
	}()

	select {
	case res := <-resultCh:
		return res.resp, res.err
	case <-time.After(c.cfg.SSETimeout):
		return nil, fmt.Errorf("timeout reading SSE response after %v", c.cfg.SSETimeout)
	}
}

func parseToolList(result json.RawMessage) ([]ToolInfo, error) {
	var parsed struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("mcp: parsing tool list: %w", err)
	}
	return parsed.Tools, nil
}

func parseCallResult(result json.RawMessage) (*Result, error) {
	var parsed Result
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("mcp: parsing tool result: %w", err)
	}
	return &parsed, nil
}

var _ Client = (*HTTPClient)(nil)
