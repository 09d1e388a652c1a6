// Maestro is a multi-agent orchestration platform. Agents speak the A2A
// protocol over HTTP, expose tools through MCP servers, and fulfil requests
// by planning workflow graphs with an LLM and executing them against the
// fleet's capabilities.
//
// The pkg tree holds the building blocks:
//
//   - pkg/a2a, pkg/a2a/client: the wire protocol and the agent HTTP client
//   - pkg/mcp: the MCP tool runtime client (stdio and HTTP transports)
//   - pkg/llms: chat-completion providers
//   - pkg/agent: the bounded LLM-tool reasoning loop
//   - pkg/capability, pkg/discovery: the capability catalog and fleet discovery
//   - pkg/workflow, pkg/planner, pkg/executor: graph model, planning, execution
//   - pkg/server: the A2A boundary and agent HTTP server
//
// cmd/maestro ties them into the agent and discovery binaries.
package maestro
