package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
name = "maestro-agent"
description = "Orchestrates the fleet"
listen = ":9090"
endpoint_url = "http://localhost:9090"
discovery_url = "http://localhost:7000"
default_agent = "generalist"

[[skills]]
name = "orchestration"
description = "Plan and run workflows"

[llm.planner]
model = "gpt-4o"
base_url = "https://api.openai.com/v1"
api_key_env = "LLM_PLANNER_API_KEY"
temperature = 0.2

[mcp]
transport = "streamable-http"
url = "http://localhost:3000/mcp"

[planner]
max_loops = 5
send_timeout = "30s"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "maestro-agent", cfg.Name)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "http://localhost:7000", cfg.DiscoveryURL)
	assert.Equal(t, "generalist", cfg.DefaultAgent)
	require.Len(t, cfg.Skills, 1)
	assert.Equal(t, "orchestration", cfg.Skills[0].Name)

	planner := cfg.LLM["planner"]
	assert.Equal(t, "gpt-4o", planner.Model)
	assert.Equal(t, "LLM_PLANNER_API_KEY", planner.APIKeyEnv)

	assert.Equal(t, "streamable-http", cfg.MCP.Transport)
	assert.Equal(t, 5, cfg.Planner.MaxLoops)
	assert.Equal(t, 30*time.Second, cfg.Planner.SendTimeout.Std())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `name = "minimal"`))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 10, cfg.Planner.MaxLoops)
	assert.Equal(t, 50*time.Second, cfg.Planner.SendTimeout.Std())
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DISCOVERY_URL", "http://discovery.test:7000")

	cfg, err := Load(writeConfig(t, `
name = "expanded"
discovery_url = "${TEST_DISCOVERY_URL}"
`))
	require.NoError(t, err)
	assert.Equal(t, "http://discovery.test:7000", cfg.DiscoveryURL)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing name", `listen = ":1"`, "name is required"},
		{"bad transport", "name = \"x\"\n[mcp]\ntransport = \"carrier-pigeon\"", "unknown mcp transport"},
		{"stdio without command", "name = \"x\"\n[mcp]\ntransport = \"stdio\"", "requires a command"},
		{"sse without url", "name = \"x\"\n[mcp]\ntransport = \"sse\"", "requires a url"},
		{"llm without model", "name = \"x\"\n[llm.planner]\nbase_url = \"http://x\"", "no model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.toml")
	assert.Error(t, err)
}

func TestStdioDefaultTransport(t *testing.T) {
	cfg, err := Load(writeConfig(t, "name = \"x\"\n[mcp]\ncommand = \"mcp-server\""))
	require.NoError(t, err)
	assert.Equal(t, "stdio", cfg.MCP.Transport)
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := writeConfig(t, `name = "before"`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, path, func(cfg *Config) {
			select {
			case changes <- cfg:
			default:
			}
		})
	}()

	// Give the watcher a moment to attach before writing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`name = "after"`), 0o644))

	select {
	case cfg := <-changes:
		assert.Equal(t, "after", cfg.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}

	cancel()
	<-done
}

func TestWatchIgnoresInvalidChange(t *testing.T) {
	path := writeConfig(t, `name = "valid"`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 1)
	go func() {
		_ = Watch(ctx, path, func(cfg *Config) {
			select {
			case changes <- cfg:
			default:
			}
		})
	}()

	time.Sleep(50 * time.Millisecond)
	// Invalid content: no name.
	require.NoError(t, os.WriteFile(path, []byte(`listen = ":1"`), 0o644))

	select {
	case cfg := <-changes:
		t.Fatalf("invalid config should not be delivered, got %q", cfg.Name)
	case <-time.After(300 * time.Millisecond):
	}
}
