package capability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/maestro-a2a/maestro/pkg/registry"
)

// AgentSource lists the agents currently known to the fleet, typically
// backed by the discovery service.
type AgentSource interface {
	ListAgents(ctx context.Context) ([]*AgentDefinition, error)
}

// ResolveError reports that no agent could serve a delegation request.
type ResolveError struct {
	Preference string
	Skill      string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("capability: no agent for skill %q (preference %q)", e.Skill, e.Preference)
}

// Registry is the capability catalog: agents, tools and tasks, each behind a
// copy-on-write snapshot. A Refresh swaps the agent map atomically, so a
// workflow that resolved an agent before the swap keeps a consistent view
// while new resolutions see the refreshed fleet.
type Registry struct {
	agents *registry.SnapshotRegistry[*AgentDefinition]
	tools  *registry.SnapshotRegistry[*ToolDefinition]
	tasks  *registry.SnapshotRegistry[*TaskDefinition]

	source       AgentSource
	defaultAgent atomic.Pointer[string]
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithAgentSource wires the source Refresh pulls agents from.
func WithAgentSource(source AgentSource) RegistryOption {
	return func(r *Registry) { r.source = source }
}

// WithDefaultAgent names the agent delegation falls back to when neither the
// preference nor a skill match resolves.
func WithDefaultAgent(agentID string) RegistryOption {
	return func(r *Registry) { r.defaultAgent.Store(&agentID) }
}

// NewRegistry creates an empty capability registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		agents: registry.New[*AgentDefinition](),
		tools:  registry.New[*ToolDefinition](),
		tasks:  registry.New[*TaskDefinition](),
	}
	empty := ""
	r.defaultAgent.Store(&empty)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterAgent adds an agent directly, bypassing discovery.
func (r *Registry) RegisterAgent(def *AgentDefinition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("capability: agent definition requires an id")
	}
	return r.agents.Put(def.ID, def)
}

// RegisterTool adds a tool definition. Tool ids must be unique.
func (r *Registry) RegisterTool(def *ToolDefinition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("capability: tool definition requires an id")
	}
	return r.tools.Register(def.ID, def)
}

// RegisterTask adds a task definition. Task ids must be unique.
func (r *Registry) RegisterTask(def *TaskDefinition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("capability: task definition requires an id")
	}
	return r.tasks.Register(def.ID, def)
}

// Agent returns the agent registered under id.
func (r *Registry) Agent(id string) (*AgentDefinition, bool) {
	return r.agents.Get(id)
}

// Tool returns the tool registered under id.
func (r *Registry) Tool(id string) (*ToolDefinition, bool) {
	return r.tools.Get(id)
}

// Task returns the task registered under id.
func (r *Registry) Task(id string) (*TaskDefinition, bool) {
	return r.tasks.Get(id)
}

// AgentSnapshot returns the current agent map. Callers must not mutate it.
func (r *Registry) AgentSnapshot() map[string]*AgentDefinition {
	return r.agents.Snapshot()
}

// Refresh re-pulls the agent fleet from the configured source and publishes
// it with one atomic swap. Malformed entries are skipped with a warning
// rather than failing the whole refresh.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.source == nil {
		return nil
	}

	agents, err := r.source.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("capability: refreshing agents: %w", err)
	}

	next := make(map[string]*AgentDefinition, len(agents))
	for _, def := range agents {
		if def == nil || def.ID == "" || def.EndpointURL == "" {
			slog.Warn("Skipping malformed agent from discovery", "agent", def)
			continue
		}
		next[def.ID] = def
	}

	r.agents.Replace(next)
	slog.Info("Capability registry refreshed", "agents", len(next))
	return nil
}

// ResolveAgent picks the agent for a delegation activity: the exact id
// preference when registered, else the first agent (by sorted id)
// advertising the skill by exact name, else the default agent.
func (r *Registry) ResolveAgent(preference, skill string) (*AgentDefinition, error) {
	snapshot := r.agents.Snapshot()

	if preference != "" {
		if agent, ok := snapshot[preference]; ok {
			return agent, nil
		}
		slog.Warn("Preferred agent not registered, falling back to skill match",
			"preference", preference, "skill", skill)
	}

	if skill != "" {
		for _, id := range r.agents.Names() {
			if snapshot[id].HasSkill(skill) {
				return snapshot[id], nil
			}
		}
	}

	if defaultID := *r.defaultAgent.Load(); defaultID != "" {
		if agent, ok := snapshot[defaultID]; ok {
			slog.Warn("No skill match, using default agent",
				"skill", skill, "agent", defaultID)
			return agent, nil
		}
	}

	return nil, &ResolveError{Preference: preference, Skill: skill}
}

// DescribeCapabilities renders the catalog as prompt-ready text for the
// planner. It never fails; empty sections render as "(none)".
func (r *Registry) DescribeCapabilities() string {
	var b strings.Builder

	b.WriteString("Available agents:\n")
	agents := r.agents.Snapshot()
	if len(agents) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, id := range r.agents.Names() {
		agent := agents[id]
		b.WriteString("  - " + id)
		if agent.Description != "" {
			b.WriteString(": " + agent.Description)
		}
		b.WriteString("\n")
		for _, skill := range agent.Skills {
			b.WriteString("      skill " + skill.Name)
			if skill.Description != "" {
				b.WriteString(": " + skill.Description)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("Available tools:\n")
	tools := r.tools.Snapshot()
	if len(tools) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, id := range r.tools.Names() {
		tool := tools[id]
		b.WriteString("  - " + id)
		if tool.Description != "" {
			b.WriteString(": " + tool.Description)
		}
		b.WriteString("\n")
		if schema := compactSchema(tool.InputSchema); schema != "" {
			b.WriteString("      input: " + schema + "\n")
		}
	}

	b.WriteString("Available tasks:\n")
	tasks := r.tasks.Snapshot()
	if len(tasks) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, id := range r.tasks.Names() {
		task := tasks[id]
		b.WriteString("  - " + id)
		if task.Description != "" {
			b.WriteString(": " + task.Description)
		}
		b.WriteString("\n")
		if schema := compactSchema(task.InputSchema); schema != "" {
			b.WriteString("      input: " + schema + "\n")
		}
	}

	return b.String()
}
