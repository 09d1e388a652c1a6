package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/maestro-a2a/maestro/pkg/a2a"
	"github.com/maestro-a2a/maestro/pkg/executor"
	"github.com/maestro-a2a/maestro/pkg/workflow"
)

// Planner is the planning surface the boundary routes requests through.
type Planner interface {
	PlanFromFile(path string) (*workflow.Graph, error)
	PlanHighLevel(ctx context.Context, query string) (string, error)
	PlanDynamic(ctx context.Context, query string) (*workflow.Graph, error)
}

// Executor runs a planned graph.
type Executor interface {
	Execute(ctx context.Context, graph *workflow.Graph, requestID, conversationID string) (*executor.ExecutionResult, error)
}

// requestOptions are the recognized message metadata keys.
type requestOptions struct {
	WorkflowURL   string `mapstructure:"workflow_url"`
	HighLevelPlan bool   `mapstructure:"high_level_plan"`
}

// Boundary adapts the A2A protocol to planning and execution: inbound
// messages become queries, results become reply messages on the task.
type Boundary struct {
	planner  Planner
	executor Executor
}

// NewBoundary creates a boundary over the given planner and executor.
func NewBoundary(p Planner, e Executor) *Boundary {
	return &Boundary{planner: p, executor: e}
}

// Handle processes one inbound message and returns the resulting task. It
// never panics out: any failure, including a panicking graph run, surfaces
// as a failed task.
func (b *Boundary) Handle(ctx context.Context, taskID, sessionID string, message a2a.Message) (task *a2a.Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered panic while handling task", "task", taskID, "panic", r)
			task = buildTask(taskID, sessionID, message, a2a.TaskStateFailed,
				fmt.Sprintf("internal error: %v", r))
		}
	}()

	query := a2a.TextOf(&message)

	var opts requestOptions
	if message.Metadata != nil {
		if err := mapstructure.Decode(message.Metadata, &opts); err != nil {
			return buildTask(taskID, sessionID, message, a2a.TaskStateFailed,
				"invalid request metadata: "+err.Error())
		}
	}

	result, err := b.route(ctx, taskID, sessionID, query, opts)
	if err != nil {
		return buildTask(taskID, sessionID, message, a2a.TaskStateFailed, err.Error())
	}

	return buildTask(taskID, sessionID, message, a2a.TaskStateCompleted, string(result.Output))
}

func (b *Boundary) route(ctx context.Context, taskID, sessionID, query string, opts requestOptions) (*executor.ExecutionResult, error) {
	switch {
	case opts.WorkflowURL != "":
		graph, err := b.planner.PlanFromFile(opts.WorkflowURL)
		if err != nil {
			return nil, err
		}
		return b.executor.Execute(ctx, graph, taskID, sessionID)

	case opts.HighLevelPlan:
		// The textual plan is the deliverable; nothing is executed.
		text, err := b.planner.PlanHighLevel(ctx, query)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(text)
		if err != nil {
			return nil, err
		}
		return &executor.ExecutionResult{
			RequestID:      taskID,
			ConversationID: sessionID,
			Success:        true,
			Output:         encoded,
		}, nil

	default:
		graph, err := b.planner.PlanDynamic(ctx, query)
		if err != nil {
			return nil, err
		}
		return b.executor.Execute(ctx, graph, taskID, sessionID)
	}
}

// buildTask assembles the reply task: the inbound message in history and the
// outcome as a single text part on the status message.
func buildTask(taskID, sessionID string, inbound a2a.Message, state a2a.TaskState, text string) *a2a.Task {
	reply := a2a.NewTextMessage(a2a.MessageRoleAgent, uuid.NewString(), text)
	return &a2a.Task{
		ID:        taskID,
		SessionID: sessionID,
		History:   []a2a.Message{inbound},
		Status: a2a.TaskStatus{
			State:     state,
			Message:   &reply,
			UpdatedAt: time.Now().UTC(),
		},
	}
}
