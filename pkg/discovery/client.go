// Package discovery implements fleet discovery: agents register themselves
// with a central discovery service and query it for peers. The package
// carries both the client used by agent processes and the service itself.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maestro-a2a/maestro/pkg/capability"
)

const (
	registerAttempts = 3
	registerBaseWait = time.Second
)

// Client talks to a discovery service.
type Client struct {
	baseURL string
	http    *http.Client
	sleep   func(time.Duration)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for the discovery service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register announces an agent to the discovery service, retrying with
// exponential backoff. Registration is best-effort: after the final attempt
// the error is returned and the caller is expected to continue unregistered.
func (c *Client) Register(ctx context.Context, def *capability.AgentDefinition) error {
	var lastErr error
	wait := registerBaseWait

	for attempt := 1; attempt <= registerAttempts; attempt++ {
		lastErr = c.post(ctx, "/register", def, http.StatusCreated)
		if lastErr == nil {
			slog.Info("Registered with discovery", "agent", def.ID, "discovery", c.baseURL)
			return nil
		}

		if attempt < registerAttempts {
			slog.Warn("Discovery registration failed, retrying",
				"agent", def.ID, "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			c.sleep(wait)
			wait *= 2
		}
	}

	return fmt.Errorf("discovery: registering %s: %w", def.ID, lastErr)
}

// Deregister removes an agent from the discovery service. The same
// definition used to register is posted back; the service matches on its id.
func (c *Client) Deregister(ctx context.Context, def *capability.AgentDefinition) error {
	if err := c.post(ctx, "/deregister", def, http.StatusOK); err != nil {
		return fmt.Errorf("discovery: deregistering %s: %w", def.ID, err)
	}
	return nil
}

// ListAgents returns every registered agent.
func (c *Client) ListAgents(ctx context.Context) ([]*capability.AgentDefinition, error) {
	return c.getAgents(ctx, "/agents")
}

// SearchBySkill returns agents advertising the skill by exact name.
func (c *Client) SearchBySkill(ctx context.Context, skill string) ([]*capability.AgentDefinition, error) {
	return c.getAgents(ctx, "/agents/search?skill="+url.QueryEscape(skill))
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}, wantStatus int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("discovery returned %d: %s", resp.StatusCode, string(data))
	}
	return nil
}

func (c *Client) getAgents(ctx context.Context, endpoint string) ([]*capability.AgentDefinition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("discovery: returned %d: %s", resp.StatusCode, string(data))
	}

	var agents []*capability.AgentDefinition
	if err := json.NewDecoder(resp.Body).Decode(&agents); err != nil {
		return nil, fmt.Errorf("discovery: decoding agents: %w", err)
	}
	return agents, nil
}

var _ capability.AgentSource = (*Client)(nil)
