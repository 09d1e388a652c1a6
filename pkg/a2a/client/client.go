// Package client provides the HTTP client used to talk to remote A2A agents.
package client

import (
	"context"
	"time"

	"github.com/maestro-a2a/maestro/pkg/a2a"
)

// DefaultSendTimeout bounds a single send round-trip to a remote agent.
const DefaultSendTimeout = 50 * time.Second

// Client is the A2A operations surface the rest of Maestro consumes.
type Client interface {
	// SendTaskMessage delivers a message for the given task and waits for
	// the agent's reply. A zero timeout uses DefaultSendTimeout.
	SendTaskMessage(ctx context.Context, taskID string, message a2a.Message, sessionID string, timeout time.Duration) (*a2a.Task, error)

	// GetTask fetches the current state of a task. historyLength limits
	// returned history; zero means none.
	GetTask(ctx context.Context, taskID string, historyLength int) (*a2a.Task, error)

	// BaseURL returns the remote agent endpoint this client targets.
	BaseURL() string
}
