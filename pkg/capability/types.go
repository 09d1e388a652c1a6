// Package capability tracks what the platform can act on: remote agents
// reachable over A2A, tools exposed by the MCP runtime, and local tasks. It
// provides the invoker abstraction the executor dispatches through and a
// copy-on-write registry whose snapshots stay stable for in-flight workflows.
package capability

import "encoding/json"

// Skill is one named capability an agent advertises.
type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AgentDefinition describes a remote agent reachable over A2A.
type AgentDefinition struct {
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	EndpointURL string  `json:"endpoint_url"`
	Skills      []Skill `json:"skills,omitempty"`
}

// HasSkill reports whether the agent advertises a skill by exact name.
func (d *AgentDefinition) HasSkill(name string) bool {
	for _, skill := range d.Skills {
		if skill.Name == name {
			return true
		}
	}
	return false
}

// ToolDefinition describes a tool callable through the MCP runtime.
type ToolDefinition struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name,omitempty"`
	Description  string                 `json:"description,omitempty"`
	InputSchema  map[string]interface{} `json:"input_schema,omitempty"`
	OutputSchema map[string]interface{} `json:"output_schema,omitempty"`
}

// TaskDefinition describes a local in-process task.
type TaskDefinition struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name,omitempty"`
	Description  string                 `json:"description,omitempty"`
	InputSchema  map[string]interface{} `json:"input_schema,omitempty"`
	OutputSchema map[string]interface{} `json:"output_schema,omitempty"`
}

func compactSchema(schema map[string]interface{}) string {
	if len(schema) == 0 {
		return ""
	}
	encoded, err := json.Marshal(schema)
	if err != nil {
		return ""
	}
	return string(encoded)
}
