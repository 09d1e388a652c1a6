package planner

import "strings"

const planSystemPrompt = `You are a workflow planner for a multi-agent platform.
Given a user request and the available capabilities, produce a workflow plan
as a single JSON object with this shape:

{
  "plan_name": "short_snake_case_name",
  "activities": [
    {
      "activity_type": "delegation_agent" | "direct_tool_use" | "direct_task_execution",
      "id": "unique_snake_case_id",
      "description": "what this step does; may reference earlier outputs as {{activity_id.field.path}}",
      "agent_config": {"skill_to_use": "...", "assigned_agent_id_preference": "..."},
      "tool_config": {"tool_to_use": "...", "tool_parameters": {...}},
      "task_config": {"task_to_use": "...", "task_parameters": {...}},
      "dependencies": [{"source": "earlier_activity_id", "condition": "result == 'value'"}],
      "expected_outcome": "what a successful output looks like"
    }
  ]
}

Rules:
- Include exactly one of agent_config, tool_config, task_config, matching activity_type.
- Dependencies may only reference activities that appear earlier in the list.
- Conditions are optional and limited to == and != comparisons against result.
- Use {{activity_id.path}} references to feed one activity's output into another.
- Only use tools, tasks, agents and skills from the capability list.
- Respond with the JSON object only, no commentary.`

const highLevelSystemPrompt = `You are a planning assistant for a multi-agent platform.
Given a user request and the available capabilities, write a concise numbered
plan in plain text describing how the request would be fulfilled. Do not
produce JSON and do not execute anything.`

// buildUserPrompt embeds the capability catalog and the user query.
func buildUserPrompt(capabilities, query string) string {
	var b strings.Builder
	b.WriteString(capabilities)
	b.WriteString("\nUser request:\n")
	b.WriteString(query)
	return b.String()
}
