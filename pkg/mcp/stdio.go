package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// StdioConfig configures a subprocess-transport MCP client.
type StdioConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// StdioClient runs an MCP server as a subprocess via mcp-go.
type StdioClient struct {
	cfg StdioConfig

	mu        sync.Mutex
	client    *mcpclient.Client
	tools     []ToolInfo
	connected bool
}

// NewStdioClient creates a client that will launch cfg.Command lazily.
func NewStdioClient(cfg StdioConfig) (*StdioClient, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcp: command is required for stdio transport")
	}
	return &StdioClient{cfg: cfg}, nil
}

// ListTools returns the tracked tool set, launching the server lazily.
func (c *StdioClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		if err := c.connect(ctx); err != nil {
			return nil, err
		}
	}

	tools := make([]ToolInfo, len(c.tools))
	copy(tools, c.tools)
	return tools, nil
}

// Refresh re-enumerates the tool set over the live connection.
func (c *StdioClient) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return c.connect(ctx)
	}
	return c.listLocked(ctx)
}

// CallTool invokes a tool over the subprocess transport.
func (c *StdioClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*Result, error) {
	c.mu.Lock()
	if !c.connected {
		if err := c.connect(ctx); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	client := c.client
	c.mu.Unlock()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp: calling %s: %w", name, err)
	}

	result := &Result{IsError: resp.IsError}
	for _, content := range resp.Content {
		if text, ok := content.(mcpgo.TextContent); ok {
			result.Content = append(result.Content, Content{Type: "text", Text: text.Text})
		}
	}
	return result, nil
}

// Close terminates the subprocess.
func (c *StdioClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.connected = false
	c.tools = nil
	return err
}

func (c *StdioClient) connect(ctx context.Context) error {
	client, err := mcpclient.NewStdioMCPClient(c.cfg.Command, envSlice(c.cfg.Env), c.cfg.Args...)
	if err != nil {
		return fmt.Errorf("mcp: creating stdio client: %w", err)
	}

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("mcp: starting %s: %w", c.cfg.Command, err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "maestro", Version: "1.0"}
	initReq.Params.ProtocolVersion = protocolVersion

	if _, err := client.Initialize(ctx, initReq); err != nil {
		client.Close()
		return fmt.Errorf("mcp: initialize failed: %w", err)
	}

	c.client = client
	c.connected = true

	if err := c.listLocked(ctx); err != nil {
		client.Close()
		c.client = nil
		c.connected = false
		return err
	}

	slog.Info("Connected to MCP server (stdio)",
		"name", c.cfg.Name,
		"command", c.cfg.Command,
		"tools", len(c.tools),
	)
	return nil
}

func (c *StdioClient) listLocked(ctx context.Context) error {
	resp, err := c.client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("mcp: listing tools: %w", err)
	}

	tools := make([]ToolInfo, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		tools = append(tools, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaToMap(t.InputSchema),
		})
	}
	c.tools = tools
	return nil
}

func schemaToMap(schema mcpgo.ToolInputSchema) map[string]interface{} {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func envSlice(env map[string]string) []string {
	if env == nil {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

var _ Client = (*StdioClient)(nil)
