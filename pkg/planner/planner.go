// Package planner turns a user query into a runnable workflow graph. Plans
// come from one of three sources: a workflow file (planning skipped), an
// LLM-written high-level textual plan, or dynamic LLM planning against the
// live capability catalog.
package planner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maestro-a2a/maestro/pkg/capability"
	"github.com/maestro-a2a/maestro/pkg/llms"
	"github.com/maestro-a2a/maestro/pkg/workflow"
)

// ValidationError reports a plan referencing capabilities that do not exist
// or dependencies that do not respect activity order.
type ValidationError struct {
	ActivityID string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("planner: invalid plan: activity %q: %s", e.ActivityID, e.Reason)
}

// Planner produces workflow graphs.
type Planner struct {
	llm      llms.Provider
	registry *capability.Registry
}

// New creates a planner using llm for dynamic planning and reg as the
// capability catalog.
func New(llm llms.Provider, reg *capability.Registry) *Planner {
	return &Planner{llm: llm, registry: reg}
}

// PlanFromFile loads a workflow file and validates it against the catalog,
// skipping LLM planning entirely.
func (p *Planner) PlanFromFile(path string) (*workflow.Graph, error) {
	graph, err := workflow.LoadPlanFile(path)
	if err != nil {
		return nil, err
	}
	if err := p.validate(graph); err != nil {
		return nil, err
	}
	return graph, nil
}

// PlanHighLevel asks the LLM for a textual plan. The text is returned as-is
// and never executed.
func (p *Planner) PlanHighLevel(ctx context.Context, query string) (string, error) {
	completion, err := p.llm.Generate(ctx, []llms.ChatMessage{
		llms.SystemMessage(highLevelSystemPrompt),
		llms.UserMessage(buildUserPrompt(p.registry.DescribeCapabilities(), query)),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("planner: generating high-level plan: %w", err)
	}
	return completion.Content, nil
}

// PlanDynamic asks the LLM for a workflow plan, parses it, and validates it
// against the capability catalog. There is no retry: a plan that fails to
// parse or validate fails the request.
func (p *Planner) PlanDynamic(ctx context.Context, query string) (*workflow.Graph, error) {
	completion, err := p.llm.Generate(ctx, []llms.ChatMessage{
		llms.SystemMessage(planSystemPrompt),
		llms.UserMessage(buildUserPrompt(p.registry.DescribeCapabilities(), query)),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("planner: generating plan: %w", err)
	}

	input, err := parsePlan(completion.Content)
	if err != nil {
		return nil, err
	}

	if err := p.checkDependencyOrder(input); err != nil {
		return nil, err
	}

	graph, err := workflow.BuildGraph(input)
	if err != nil {
		return nil, err
	}
	if err := p.validate(graph); err != nil {
		return nil, err
	}

	slog.Info("Plan generated", "plan", graph.PlanName, "activities", len(graph.Nodes))
	return graph, nil
}

// checkDependencyOrder requires every dependency to reference an activity
// earlier in the plan list, which is stricter than mere acyclicity.
func (p *Planner) checkDependencyOrder(input *workflow.PlanInput) error {
	seen := make(map[string]bool, len(input.Activities))
	for _, activity := range input.Activities {
		for _, dep := range activity.Dependencies {
			if !seen[dep.Source] {
				return &ValidationError{
					ActivityID: activity.ID,
					Reason:     fmt.Sprintf("dependency %q does not reference an earlier activity", dep.Source),
				}
			}
		}
		seen[activity.ID] = true
	}
	return nil
}

// validate checks capability references. Unknown tools and tasks fail the
// plan; unknown skills only warn, because the fleet may change before the
// activity is dispatched.
func (p *Planner) validate(graph *workflow.Graph) error {
	for _, id := range graph.Order() {
		activity := graph.Nodes[id]

		switch activity.Type {
		case workflow.ActivityDirectToolUse:
			if activity.ToolConfig == nil || activity.ToolConfig.ToolToUse == "" {
				return &ValidationError{ActivityID: id, Reason: "missing tool_config"}
			}
			if _, ok := p.registry.Tool(activity.ToolConfig.ToolToUse); !ok {
				return &ValidationError{
					ActivityID: id,
					Reason:     fmt.Sprintf("unknown tool %q", activity.ToolConfig.ToolToUse),
				}
			}

		case workflow.ActivityDirectTaskExecution:
			if activity.TaskConfig == nil || activity.TaskConfig.TaskToUse == "" {
				return &ValidationError{ActivityID: id, Reason: "missing task_config"}
			}
			if _, ok := p.registry.Task(activity.TaskConfig.TaskToUse); !ok {
				return &ValidationError{
					ActivityID: id,
					Reason:     fmt.Sprintf("unknown task %q", activity.TaskConfig.TaskToUse),
				}
			}

		case workflow.ActivityDelegationAgent:
			// agent_config is optional: a bare delegation falls back to the
			// default agent at dispatch time.
			var preference, skill string
			if activity.AgentConfig != nil {
				preference = activity.AgentConfig.AssignedAgentIDPreference
				skill = activity.AgentConfig.SkillToUse
			}
			if skill == "" {
				continue
			}
			if _, err := p.registry.ResolveAgent(preference, skill); err != nil {
				slog.Warn("Plan references skill no agent currently advertises",
					"activity", id, "skill", skill)
			}
		}
	}
	return nil
}
