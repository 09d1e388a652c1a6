// Package workflow defines the workflow graph model: activities, conditional
// dependency edges, the {{id.path}} reference language, and the minimal
// condition grammar evaluated on completed outputs.
package workflow

import (
	"encoding/json"
	"fmt"
	"os"
)

// ActivityType selects how an activity is dispatched.
type ActivityType string

const (
	ActivityDelegationAgent     ActivityType = "delegation_agent"
	ActivityDirectToolUse       ActivityType = "direct_tool_use"
	ActivityDirectTaskExecution ActivityType = "direct_task_execution"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityDelegationAgent, ActivityDirectToolUse, ActivityDirectTaskExecution:
		return true
	}
	return false
}

// AgentConfig targets a delegation activity at an agent.
type AgentConfig struct {
	SkillToUse                string `json:"skill_to_use,omitempty"`
	AssignedAgentIDPreference string `json:"assigned_agent_id_preference,omitempty"`
}

// ToolConfig targets a direct tool-use activity.
type ToolConfig struct {
	ToolToUse      string                 `json:"tool_to_use,omitempty"`
	ToolParameters map[string]interface{} `json:"tool_parameters,omitempty"`
}

// TaskConfig targets a direct task-execution activity.
type TaskConfig struct {
	TaskToUse      string                 `json:"task_to_use,omitempty"`
	TaskParameters map[string]interface{} `json:"task_parameters,omitempty"`
}

// Dependency points at an upstream activity, optionally gated by a condition
// evaluated on the upstream output. An absent condition is always true.
type Dependency struct {
	Source    string `json:"source"`
	Condition string `json:"condition,omitempty"`
}

// Activity is a single node of work. Exactly one of AgentConfig, ToolConfig
// and TaskConfig is meaningful, selected by Type.
type Activity struct {
	Type            ActivityType `json:"activity_type"`
	ID              string       `json:"id"`
	Description     string       `json:"description"`
	AgentConfig     *AgentConfig `json:"agent_config,omitempty"`
	ToolConfig      *ToolConfig  `json:"tool_config,omitempty"`
	TaskConfig      *TaskConfig  `json:"task_config,omitempty"`
	Dependencies    []Dependency `json:"dependencies,omitempty"`
	ExpectedOutcome string       `json:"expected_outcome,omitempty"`

	// Output is filled by the executor upon completion.
	Output json.RawMessage `json:"activity_output,omitempty"`
}

// PlanInput is the wire format of a workflow plan, as produced by the
// planner LLM or loaded from a workflow file.
type PlanInput struct {
	PlanName   string      `json:"plan_name"`
	Activities []*Activity `json:"activities"`
}

// Edge is one dependency edge of the built graph.
type Edge struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Condition string `json:"condition,omitempty"`
}

// Graph is a validated DAG of activities with forward and reverse adjacency.
type Graph struct {
	PlanName string               `json:"plan_name"`
	Nodes    map[string]*Activity `json:"nodes"`
	Edges    []Edge               `json:"edges"`

	outgoing map[string][]Edge
	incoming map[string][]Edge
	order    []string
}

// ValidationError reports a structurally invalid plan.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow: invalid plan: %s", e.Message)
}

func invalidPlan(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// BuildGraph validates a plan and derives the edge set and adjacency. The
// derived edges must form a DAG; activity ids must be unique; every
// dependency must reference a declared activity; conditions must parse.
func BuildGraph(input *PlanInput) (*Graph, error) {
	if input == nil {
		return nil, invalidPlan("plan is nil")
	}
	if len(input.Activities) == 0 {
		return nil, invalidPlan("plan %q has no activities", input.PlanName)
	}

	g := &Graph{
		PlanName: input.PlanName,
		Nodes:    make(map[string]*Activity, len(input.Activities)),
		outgoing: make(map[string][]Edge),
		incoming: make(map[string][]Edge),
	}

	for _, activity := range input.Activities {
		if activity.ID == "" {
			return nil, invalidPlan("activity with empty id")
		}
		if _, exists := g.Nodes[activity.ID]; exists {
			return nil, invalidPlan("duplicate activity id %q", activity.ID)
		}
		if !activity.Type.Valid() {
			return nil, invalidPlan("activity %q has unknown type %q", activity.ID, activity.Type)
		}
		g.Nodes[activity.ID] = activity
	}

	for _, activity := range input.Activities {
		for _, dep := range activity.Dependencies {
			if _, exists := g.Nodes[dep.Source]; !exists {
				return nil, invalidPlan("activity %q depends on unknown activity %q", activity.ID, dep.Source)
			}
			if dep.Source == activity.ID {
				return nil, invalidPlan("activity %q depends on itself", activity.ID)
			}
			if _, err := ParseCondition(dep.Condition); err != nil {
				return nil, invalidPlan("activity %q: %v", activity.ID, err)
			}
			edge := Edge{Source: dep.Source, Target: activity.ID, Condition: dep.Condition}
			g.Edges = append(g.Edges, edge)
			g.outgoing[dep.Source] = append(g.outgoing[dep.Source], edge)
			g.incoming[activity.ID] = append(g.incoming[activity.ID], edge)
		}
	}

	order, err := g.topologicalOrder()
	if err != nil {
		return nil, err
	}
	g.order = order

	return g, nil
}

// topologicalOrder runs Kahn's algorithm; a leftover node means a cycle.
func (g *Graph) topologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for id := range g.Nodes {
		inDegree[id] = len(g.incoming[id])
	}

	var ready []string
	for id, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, edge := range g.outgoing[id] {
			inDegree[edge.Target]--
			if inDegree[edge.Target] == 0 {
				ready = append(ready, edge.Target)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, invalidPlan("dependency cycle detected")
	}
	return order, nil
}

// Outgoing returns the edges leaving id.
func (g *Graph) Outgoing(id string) []Edge {
	return g.outgoing[id]
}

// Incoming returns the edges entering id.
func (g *Graph) Incoming(id string) []Edge {
	return g.incoming[id]
}

// Order returns a topological order of activity ids.
func (g *Graph) Order() []string {
	return g.order
}

// Terminals returns the ids of activities with no outgoing edges.
func (g *Graph) Terminals() []string {
	var terminals []string
	for _, id := range g.order {
		if len(g.outgoing[id]) == 0 {
			terminals = append(terminals, id)
		}
	}
	return terminals
}

// UnmarshalJSON rebuilds adjacency and topological order from the
// serialized node and edge sets, so a serialized graph round-trips.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var raw struct {
		PlanName string               `json:"plan_name"`
		Nodes    map[string]*Activity `json:"nodes"`
		Edges    []Edge               `json:"edges"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	g.PlanName = raw.PlanName
	g.Nodes = raw.Nodes
	g.Edges = raw.Edges
	g.outgoing = make(map[string][]Edge)
	g.incoming = make(map[string][]Edge)

	for _, edge := range g.Edges {
		if _, ok := g.Nodes[edge.Source]; !ok {
			return invalidPlan("edge source %q not in nodes", edge.Source)
		}
		if _, ok := g.Nodes[edge.Target]; !ok {
			return invalidPlan("edge target %q not in nodes", edge.Target)
		}
		g.outgoing[edge.Source] = append(g.outgoing[edge.Source], edge)
		g.incoming[edge.Target] = append(g.incoming[edge.Target], edge)
	}

	order, err := g.topologicalOrder()
	if err != nil {
		return err
	}
	g.order = order
	return nil
}

// LoadPlanFile reads and builds a graph from a workflow JSON file.
func LoadPlanFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: reading plan file: %w", err)
	}

	var input PlanInput
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("workflow: parsing plan file %s: %w", path, err)
	}

	return BuildGraph(&input)
}
