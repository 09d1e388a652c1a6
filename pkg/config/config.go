// Package config loads agent configuration from TOML. Values support
// ${VAR} environment expansion; a .env file next to the process is loaded
// first when present.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Duration is a time.Duration that decodes from TOML strings like "50s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LLMConfig configures one LLM role.
type LLMConfig struct {
	Model       string  `toml:"model"`
	BaseURL     string  `toml:"base_url"`
	APIKeyEnv   string  `toml:"api_key_env"`
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
}

// MCPConfig configures the MCP tool server connection.
type MCPConfig struct {
	Transport string   `toml:"transport"` // stdio, sse or streamable-http
	URL       string   `toml:"url"`
	Command   string   `toml:"command"`
	Args      []string `toml:"args"`
	Env       []string `toml:"env"`
}

// PlannerConfig bounds planning and delegation behavior.
type PlannerConfig struct {
	MaxLoops    int      `toml:"max_loops"`
	SendTimeout Duration `toml:"send_timeout"`
}

// SkillConfig is one advertised skill.
type SkillConfig struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
}

// Config is the full agent configuration.
type Config struct {
	Name         string        `toml:"name"`
	Description  string        `toml:"description"`
	Listen       string        `toml:"listen"`
	EndpointURL  string        `toml:"endpoint_url"`
	DiscoveryURL string        `toml:"discovery_url"`
	DefaultAgent string        `toml:"default_agent"`
	Skills       []SkillConfig `toml:"skills"`

	LLM     map[string]LLMConfig `toml:"llm"`
	MCP     MCPConfig            `toml:"mcp"`
	Planner PlannerConfig        `toml:"planner"`
}

// Load reads, expands and validates the configuration at path.
func Load(path string) (*Config, error) {
	// A .env file is optional; real environment always wins.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded := os.Expand(string(data), func(name string) string {
		return os.Getenv(name)
	})

	var cfg Config
	if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Planner.MaxLoops == 0 {
		c.Planner.MaxLoops = 10
	}
	if c.Planner.SendTimeout == 0 {
		c.Planner.SendTimeout = Duration(50 * time.Second)
	}
	if c.MCP.Transport == "" && c.MCP.Command != "" {
		c.MCP.Transport = "stdio"
	}
}

// Validate checks structural requirements.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: name is required")
	}

	switch c.MCP.Transport {
	case "", "stdio", "sse", "streamable-http":
	default:
		return fmt.Errorf("config: unknown mcp transport %q", c.MCP.Transport)
	}
	if c.MCP.Transport == "stdio" && c.MCP.Command == "" {
		return fmt.Errorf("config: mcp stdio transport requires a command")
	}
	if (c.MCP.Transport == "sse" || c.MCP.Transport == "streamable-http") && c.MCP.URL == "" {
		return fmt.Errorf("config: mcp %s transport requires a url", c.MCP.Transport)
	}

	for role, llm := range c.LLM {
		if llm.Model == "" {
			return fmt.Errorf("config: llm role %q has no model", role)
		}
	}
	return nil
}
