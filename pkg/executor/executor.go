// Package executor runs workflow graphs: it dispatches ready activities in
// parallel, feeds completed outputs into downstream parameters, evaluates
// conditional edges, and aggregates terminal outputs into one result.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/maestro-a2a/maestro/pkg/capability"
	"github.com/maestro-a2a/maestro/pkg/workflow"
)

// RunState is the lifecycle phase of a single run.
type RunState string

const (
	StateIdle               RunState = "idle"
	StateInitializing       RunState = "initializing"
	StateDecidingNextStep   RunState = "deciding_next_step"
	StateExecutingStep      RunState = "executing_step"
	StateAwaitingResponse   RunState = "awaiting_response"
	StateProcessingResponse RunState = "processing_response"
	StateCompleted          RunState = "completed"
	StateFailed             RunState = "failed"
)

// ExecutionResult is the outcome of one workflow run.
type ExecutionResult struct {
	RequestID      string          `json:"request_id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Success        bool            `json:"success"`
	Output         json.RawMessage `json:"output,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// PlanExecutor executes workflow graphs against the capability invokers. It
// is stateless between runs and safe for concurrent use; each Execute call
// owns its run state.
type PlanExecutor struct {
	registry *capability.Registry
	agents   capability.AgentInvoker
	tools    capability.ToolInvoker
	tasks    capability.TaskInvoker
	metrics  *Metrics
}

// Option configures a PlanExecutor.
type Option func(*PlanExecutor)

// WithMetrics replaces the metrics sink, typically with one bound to a
// private registerer in tests.
func WithMetrics(m *Metrics) Option {
	return func(e *PlanExecutor) { e.metrics = m }
}

// New creates an executor dispatching through the given invokers.
func New(reg *capability.Registry, agents capability.AgentInvoker, tools capability.ToolInvoker, tasks capability.TaskInvoker, opts ...Option) *PlanExecutor {
	e := &PlanExecutor{
		registry: reg,
		agents:   agents,
		tools:    tools,
		tasks:    tasks,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(prometheus.DefaultRegisterer)
	}
	return e
}

type activityStatus int

const (
	statusPending activityStatus = iota
	statusRunning
	statusCompleted
	statusSkipped
)

type activityResult struct {
	id     string
	output json.RawMessage
	err    error
}

// run holds the mutable state of one execution. Only the scheduler
// goroutine touches it; workers communicate through the results channel.
type run struct {
	graph *workflow.Graph
	state RunState

	status    map[string]activityStatus
	pending   map[string]int // unresolved incoming edges
	satisfied map[string]int // incoming edges resolved satisfied

	outputs map[string]interface{} // decoded outputs of completed activities
	running int
	failure error

	group   *errgroup.Group
	results chan activityResult
}

// Execute runs the graph to completion. The first activity failure aborts
// the run: no new activities are dispatched, in-flight ones drain with their
// outputs discarded, and the error surfaces as "<activity_id>: <error>".
func (e *PlanExecutor) Execute(ctx context.Context, graph *workflow.Graph, requestID, conversationID string) (*ExecutionResult, error) {
	started := time.Now()
	defer func() {
		e.metrics.runDuration.Observe(time.Since(started).Seconds())
	}()

	r := &run{
		graph:     graph,
		state:     StateInitializing,
		status:    make(map[string]activityStatus, len(graph.Nodes)),
		pending:   make(map[string]int, len(graph.Nodes)),
		satisfied: make(map[string]int, len(graph.Nodes)),
		outputs:   make(map[string]interface{}, len(graph.Nodes)),
		group:     &errgroup.Group{},
		results:   make(chan activityResult),
	}
	for id := range graph.Nodes {
		r.status[id] = statusPending
		r.pending[id] = len(graph.Incoming(id))
	}

	slog.Info("Workflow run starting",
		"plan", graph.PlanName, "request", requestID, "activities", len(graph.Nodes))

	r.state = StateDecidingNextStep
	for _, id := range graph.Order() {
		if r.pending[id] == 0 {
			e.dispatch(ctx, r, id)
		}
	}

	r.state = StateAwaitingResponse
	for r.running > 0 {
		result := <-r.results
		r.running--
		r.state = StateProcessingResponse

		if r.failure != nil {
			// Draining after a failure: the outcome is discarded.
			r.state = StateAwaitingResponse
			continue
		}

		if result.err != nil {
			e.metrics.failed.Inc()
			r.failure = fmt.Errorf("%s: %w", result.id, result.err)
			slog.Error("Activity failed, aborting run",
				"plan", graph.PlanName, "activity", result.id, "error", result.err)
			r.state = StateAwaitingResponse
			continue
		}

		e.metrics.completed.Inc()
		e.complete(ctx, r, result)
		r.state = StateAwaitingResponse
	}
	_ = r.group.Wait()

	if r.failure != nil {
		r.state = StateFailed
		return &ExecutionResult{
			RequestID:      requestID,
			ConversationID: conversationID,
			Success:        false,
			Error:          r.failure.Error(),
		}, r.failure
	}

	output := aggregateTerminals(r)
	r.state = StateCompleted
	slog.Info("Workflow run completed", "plan", graph.PlanName, "request", requestID)

	return &ExecutionResult{
		RequestID:      requestID,
		ConversationID: conversationID,
		Success:        true,
		Output:         output,
	}, nil
}

// complete records a finished activity, resolves its outgoing edges exactly
// once, and dispatches or skips downstream activities.
func (e *PlanExecutor) complete(ctx context.Context, r *run, result activityResult) {
	r.status[result.id] = statusCompleted
	r.graph.Nodes[result.id].Output = result.output

	var decoded interface{}
	if err := json.Unmarshal(result.output, &decoded); err != nil {
		decoded = string(result.output)
	}
	r.outputs[result.id] = decoded

	r.state = StateDecidingNextStep
	for _, edge := range r.graph.Outgoing(result.id) {
		satisfied, err := workflow.EvalCondition(edge.Condition, decoded)
		if err != nil {
			// Conditions were validated at build time.
			satisfied = false
		}
		e.resolveEdge(ctx, r, edge.Target, satisfied)
	}
}

// resolveEdge accounts one incoming edge of target as resolved. When every
// incoming edge is resolved, the target runs if at least one edge was
// satisfied and is skipped otherwise; a skip resolves the target's own
// outgoing edges as unsatisfied, cascading.
func (e *PlanExecutor) resolveEdge(ctx context.Context, r *run, target string, satisfied bool) {
	r.pending[target]--
	if satisfied {
		r.satisfied[target]++
	}
	if r.pending[target] > 0 {
		return
	}

	if r.satisfied[target] > 0 {
		e.dispatch(ctx, r, target)
		return
	}

	r.status[target] = statusSkipped
	e.metrics.skipped.Inc()
	slog.Info("Activity skipped", "plan", r.graph.PlanName, "activity", target)
	for _, edge := range r.graph.Outgoing(target) {
		e.resolveEdge(ctx, r, edge.Target, false)
	}
}

// dispatch substitutes the activity's parameters against completed outputs
// and starts it. Substitution happens on the scheduler goroutine, so the
// outputs map is never read concurrently.
func (e *PlanExecutor) dispatch(ctx context.Context, r *run, id string) {
	if r.failure != nil {
		return
	}
	activity := r.graph.Nodes[id]

	resolved, err := resolveActivity(activity, r.outputs)
	if err != nil {
		if r.failure == nil {
			e.metrics.failed.Inc()
			r.failure = fmt.Errorf("%s: %w", id, err)
		}
		return
	}

	r.status[id] = statusRunning
	r.running++
	e.metrics.dispatched.Inc()
	r.state = StateExecutingStep
	slog.Debug("Dispatching activity", "plan", r.graph.PlanName, "activity", id, "type", activity.Type)

	r.group.Go(func() error {
		output, err := e.invoke(ctx, resolved)
		r.results <- activityResult{id: id, output: output, err: err}
		return nil
	})
}

// resolvedActivity is an activity with its templates expanded.
type resolvedActivity struct {
	activity    *workflow.Activity
	description string
	toolParams  map[string]interface{}
	taskParams  map[string]interface{}
}

func resolveActivity(activity *workflow.Activity, outputs map[string]interface{}) (*resolvedActivity, error) {
	resolved := &resolvedActivity{activity: activity}

	description, err := workflow.Substitute(activity.Description, outputs)
	if err != nil {
		return nil, err
	}
	resolved.description = stringifyResolved(description)

	if activity.ToolConfig != nil {
		params, err := substituteParams(activity.ToolConfig.ToolParameters, outputs)
		if err != nil {
			return nil, err
		}
		resolved.toolParams = params
	}
	if activity.TaskConfig != nil {
		params, err := substituteParams(activity.TaskConfig.TaskParameters, outputs)
		if err != nil {
			return nil, err
		}
		resolved.taskParams = params
	}
	return resolved, nil
}

func substituteParams(params map[string]interface{}, outputs map[string]interface{}) (map[string]interface{}, error) {
	if params == nil {
		return nil, nil
	}
	substituted, err := workflow.Substitute(map[string]interface{}(params), outputs)
	if err != nil {
		return nil, err
	}
	return substituted.(map[string]interface{}), nil
}

func stringifyResolved(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(encoded)
}

// invoke dispatches by activity type.
func (e *PlanExecutor) invoke(ctx context.Context, resolved *resolvedActivity) (json.RawMessage, error) {
	activity := resolved.activity

	switch activity.Type {
	case workflow.ActivityDelegationAgent:
		var preference, skill string
		if activity.AgentConfig != nil {
			preference = activity.AgentConfig.AssignedAgentIDPreference
			skill = activity.AgentConfig.SkillToUse
		}
		agent, err := e.registry.ResolveAgent(preference, skill)
		if err != nil {
			return nil, err
		}
		return e.agents.Interact(ctx, agent.ID, resolved.description, skill)

	case workflow.ActivityDirectToolUse:
		if activity.ToolConfig == nil || activity.ToolConfig.ToolToUse == "" {
			return nil, fmt.Errorf("executor: activity %s has no tool_config", activity.ID)
		}
		return e.tools.Invoke(ctx, activity.ToolConfig.ToolToUse, resolved.toolParams)

	case workflow.ActivityDirectTaskExecution:
		if activity.TaskConfig == nil || activity.TaskConfig.TaskToUse == "" {
			return nil, fmt.Errorf("executor: activity %s has no task_config", activity.ID)
		}
		return e.tasks.Invoke(ctx, activity.TaskConfig.TaskToUse, resolved.taskParams)

	default:
		return nil, fmt.Errorf("executor: activity %s has unknown type %q", activity.ID, activity.Type)
	}
}

// aggregateTerminals folds completed sink outputs into the run output: an
// object keyed by activity id, whatever the sink count, so callers see one
// stable shape. No completed sinks (everything skipped) yields null.
func aggregateTerminals(r *run) json.RawMessage {
	var completed []string
	for _, id := range r.graph.Terminals() {
		if r.status[id] == statusCompleted {
			completed = append(completed, id)
		}
	}
	if len(completed) == 0 {
		return json.RawMessage("null")
	}

	combined := make(map[string]json.RawMessage, len(completed))
	for _, id := range completed {
		combined[id] = r.graph.Nodes[id].Output
	}
	encoded, err := json.Marshal(combined)
	if err != nil {
		return json.RawMessage("null")
	}
	return encoded
}
