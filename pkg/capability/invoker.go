package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maestro-a2a/maestro/pkg/a2a"
	a2aclient "github.com/maestro-a2a/maestro/pkg/a2a/client"
	"github.com/maestro-a2a/maestro/pkg/mcp"
	"github.com/maestro-a2a/maestro/pkg/registry"
)

// AgentInvoker delegates a message to a remote agent and returns its reply
// as a JSON value.
type AgentInvoker interface {
	Interact(ctx context.Context, agentID, message, skill string) (json.RawMessage, error)
}

// ToolInvoker invokes a tool by id with a parameter map.
type ToolInvoker interface {
	Invoke(ctx context.Context, toolID string, params map[string]interface{}) (json.RawMessage, error)
}

// TaskInvoker executes a local task by id with a parameter map.
type TaskInvoker interface {
	Invoke(ctx context.Context, taskID string, params map[string]interface{}) (json.RawMessage, error)
}

// InvokerError reports a capability that was reached but failed.
type InvokerError struct {
	Capability string
	Message    string
}

func (e *InvokerError) Error() string {
	return fmt.Sprintf("capability: %s failed: %s", e.Capability, e.Message)
}

// ============================================================================
// A2A AGENT INVOKER
// ============================================================================

// A2AAgentInvoker delegates over the A2A protocol. Agent endpoints come from
// the registry snapshot at call time; clients are cached per endpoint.
type A2AAgentInvoker struct {
	registry  *Registry
	timeout   time.Duration
	newClient func(baseURL string) a2aclient.Client

	mu      sync.Mutex
	clients map[string]a2aclient.Client
}

// A2AInvokerOption configures an A2AAgentInvoker.
type A2AInvokerOption func(*A2AAgentInvoker)

// WithSendTimeout bounds each delegation round-trip.
func WithSendTimeout(timeout time.Duration) A2AInvokerOption {
	return func(i *A2AAgentInvoker) { i.timeout = timeout }
}

// WithClientFactory replaces how per-endpoint clients are built.
func WithClientFactory(factory func(baseURL string) a2aclient.Client) A2AInvokerOption {
	return func(i *A2AAgentInvoker) { i.newClient = factory }
}

// NewA2AAgentInvoker creates an invoker resolving endpoints through reg.
func NewA2AAgentInvoker(reg *Registry, opts ...A2AInvokerOption) *A2AAgentInvoker {
	i := &A2AAgentInvoker{
		registry: reg,
		timeout:  a2aclient.DefaultSendTimeout,
		newClient: func(baseURL string) a2aclient.Client {
			return a2aclient.NewHTTPClient(baseURL)
		},
		clients: make(map[string]a2aclient.Client),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Interact sends the message to the agent and returns the first text part of
// its reply. A reply that is valid JSON passes through raw; plain text is
// wrapped as {"text_response": ...}.
func (i *A2AAgentInvoker) Interact(ctx context.Context, agentID, message, skill string) (json.RawMessage, error) {
	agent, ok := i.registry.Agent(agentID)
	if !ok {
		return nil, &InvokerError{Capability: agentID, Message: "agent not registered"}
	}

	msg := a2a.NewTextMessage(a2a.MessageRoleUser, uuid.NewString(), message)
	if skill != "" {
		msg.Metadata = map[string]interface{}{"skill": skill}
	}

	client := i.clientFor(agent.EndpointURL)
	task, err := client.SendTaskMessage(ctx, uuid.NewString(), msg, "", i.timeout)
	if err != nil {
		return nil, fmt.Errorf("capability: delegating to %s: %w", agentID, err)
	}

	reply := task.Status.Message
	if task.Status.State == a2a.TaskStateFailed {
		detail := a2a.TextOf(reply)
		if detail == "" {
			detail = "agent reported failure"
		}
		return nil, &InvokerError{Capability: agentID, Message: detail}
	}

	text, ok := a2a.FirstText(reply)
	if !ok {
		return nil, &InvokerError{Capability: agentID, Message: "agent returned no text reply"}
	}

	if json.Valid([]byte(text)) {
		return json.RawMessage(text), nil
	}
	wrapped, err := json.Marshal(map[string]string{"text_response": text})
	if err != nil {
		return nil, fmt.Errorf("capability: wrapping reply from %s: %w", agentID, err)
	}
	return wrapped, nil
}

func (i *A2AAgentInvoker) clientFor(baseURL string) a2aclient.Client {
	i.mu.Lock()
	defer i.mu.Unlock()

	if client, ok := i.clients[baseURL]; ok {
		return client
	}
	client := i.newClient(baseURL)
	i.clients[baseURL] = client
	return client
}

var _ AgentInvoker = (*A2AAgentInvoker)(nil)

// ============================================================================
// MCP TOOL INVOKER
// ============================================================================

// MCPToolInvoker invokes tools through a single MCP runtime client.
type MCPToolInvoker struct {
	client mcp.Client
}

// NewMCPToolInvoker creates an invoker backed by client.
func NewMCPToolInvoker(client mcp.Client) *MCPToolInvoker {
	return &MCPToolInvoker{client: client}
}

// Invoke calls the tool and flattens its content list into one JSON value.
// A result flagged as an error becomes an InvokerError.
func (i *MCPToolInvoker) Invoke(ctx context.Context, toolID string, params map[string]interface{}) (json.RawMessage, error) {
	result, err := i.client.CallTool(ctx, toolID, params)
	if err != nil {
		return nil, fmt.Errorf("capability: calling tool %s: %w", toolID, err)
	}
	if result.IsError {
		return nil, &InvokerError{Capability: toolID, Message: result.ErrorText()}
	}
	return result.JSONValue(), nil
}

var _ ToolInvoker = (*MCPToolInvoker)(nil)

// ============================================================================
// LOCAL TASK INVOKER
// ============================================================================

// TaskFunc is the implementation of a local task.
type TaskFunc func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// LocalTaskInvoker dispatches tasks to in-process functions.
type LocalTaskInvoker struct {
	funcs *registry.SnapshotRegistry[TaskFunc]
}

// NewLocalTaskInvoker creates an empty invoker.
func NewLocalTaskInvoker() *LocalTaskInvoker {
	return &LocalTaskInvoker{funcs: registry.New[TaskFunc]()}
}

// RegisterFunc binds a task id to its implementation.
func (i *LocalTaskInvoker) RegisterFunc(taskID string, fn TaskFunc) error {
	if fn == nil {
		return fmt.Errorf("capability: task %q has nil implementation", taskID)
	}
	return i.funcs.Register(taskID, fn)
}

// Invoke runs the task function and encodes its result as JSON.
func (i *LocalTaskInvoker) Invoke(ctx context.Context, taskID string, params map[string]interface{}) (json.RawMessage, error) {
	fn, ok := i.funcs.Get(taskID)
	if !ok {
		return nil, &InvokerError{Capability: taskID, Message: "task not registered"}
	}

	result, err := fn(ctx, params)
	if err != nil {
		return nil, &InvokerError{Capability: taskID, Message: err.Error()}
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("capability: encoding result of task %s: %w", taskID, err)
	}
	return encoded, nil
}

var _ TaskInvoker = (*LocalTaskInvoker)(nil)
