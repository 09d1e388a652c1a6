package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maestro-a2a/maestro/pkg/a2a"
	"github.com/maestro-a2a/maestro/pkg/httpclient"
)

// TimeoutError reports a send that exceeded its deadline.
type TimeoutError struct {
	AgentURL string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("a2a: send to %s timed out after %v", e.AgentURL, e.Timeout)
}

// HTTPClient talks HTTP+JSON to a single remote agent. It is safe for
// concurrent use; the underlying connection pool is shared.
type HTTPClient struct {
	baseURL string
	token   string
	client  *httpclient.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithToken sets a bearer token for outgoing requests.
func WithToken(token string) HTTPOption {
	return func(c *HTTPClient) { c.token = token }
}

// WithRetryClient replaces the underlying retrying client.
func WithRetryClient(rc *httpclient.Client) HTTPOption {
	return func(c *HTTPClient) { c.client = rc }
}

// NewHTTPClient creates a client for the agent at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 300 * time.Second}),
			httpclient.WithMaxRetries(2),
			httpclient.WithBaseDelay(time.Second),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the remote agent endpoint.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// SendTaskMessage posts a message to the remote agent and waits for the
// resulting task, bounding the round-trip with the given timeout.
func (c *HTTPClient) SendTaskMessage(ctx context.Context, taskID string, message a2a.Message, sessionID string, timeout time.Duration) (*a2a.Task, error) {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := a2a.SendTaskParams{
		TaskID:    taskID,
		Message:   message,
		SessionID: sessionID,
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("a2a: marshaling send params: %w", err)
	}

	var task a2a.Task
	if err := c.post(ctx, "/v1/tasks/send", body, &task); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{AgentURL: c.baseURL, Timeout: timeout}
		}
		return nil, err
	}
	return &task, nil
}

// GetTask fetches the current state of a task from the remote agent.
func (c *HTTPClient) GetTask(ctx context.Context, taskID string, historyLength int) (*a2a.Task, error) {
	endpoint := "/v1/tasks/" + url.PathEscape(taskID)
	if historyLength > 0 {
		endpoint += "?historyLength=" + strconv.Itoa(historyLength)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("a2a: creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("a2a: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("a2a: agent returned %d: %s", resp.StatusCode, string(data))
	}

	var task a2a.Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("a2a: decoding task: %w", err)
	}
	return &task, nil
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("a2a: creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("a2a: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("a2a: agent returned %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("a2a: decoding response: %w", err)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

var _ Client = (*HTTPClient)(nil)
