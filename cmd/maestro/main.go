// Command maestro runs the Maestro platform binaries: the orchestrating
// agent server, the discovery service, and client utilities for driving a
// running fleet.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maestro-a2a/maestro"
	"github.com/maestro-a2a/maestro/pkg/a2a"
	a2aclient "github.com/maestro-a2a/maestro/pkg/a2a/client"
	"github.com/maestro-a2a/maestro/pkg/agent"
	"github.com/maestro-a2a/maestro/pkg/capability"
	"github.com/maestro-a2a/maestro/pkg/config"
	"github.com/maestro-a2a/maestro/pkg/discovery"
	"github.com/maestro-a2a/maestro/pkg/executor"
	"github.com/maestro-a2a/maestro/pkg/llms"
	"github.com/maestro-a2a/maestro/pkg/mcp"
	"github.com/maestro-a2a/maestro/pkg/planner"
	"github.com/maestro-a2a/maestro/pkg/server"
	"github.com/maestro-a2a/maestro/pkg/tasks"
)

type cli struct {
	LogLevel string `help:"Log level." enum:"debug,info,warn,error" default:"info"`

	Serve     serveCmd     `cmd:"" help:"Run the orchestrating agent server."`
	Discovery discoveryCmd `cmd:"" help:"Run the discovery service."`
	Run       runCmd       `cmd:"" help:"Execute a workflow file against a running agent."`
	Ask       askCmd       `cmd:"" help:"Ask the local MCP agent loop a one-shot question."`
	Version   versionCmd   `cmd:"" help:"Print version information."`
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("maestro"),
		kong.Description("Multi-agent orchestration platform."),
		kong.UsageOnError(),
	)

	setupLogging(c.LogLevel)
	kctx.FatalIfErrorf(kctx.Run())
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// ============================================================================
// SERVE
// ============================================================================

type serveCmd struct {
	Config string `help:"Path to the agent config file." default:"agent.toml" type:"path"`
	Watch  bool   `help:"Reload configuration on change."`
}

func (c *serveCmd) Run() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var disco *discovery.Client
	regOpts := []capability.RegistryOption{}
	if cfg.DefaultAgent != "" {
		regOpts = append(regOpts, capability.WithDefaultAgent(cfg.DefaultAgent))
	}
	if cfg.DiscoveryURL != "" {
		disco = discovery.NewClient(cfg.DiscoveryURL)
		regOpts = append(regOpts, capability.WithAgentSource(disco))
	}
	reg := capability.NewRegistry(regOpts...)

	toolInvoker, mcpClient, err := buildToolInvoker(ctx, cfg, reg)
	if err != nil {
		return err
	}
	if mcpClient != nil {
		defer mcpClient.Close()
	}

	taskInvoker := capability.NewLocalTaskInvoker()
	if err := tasks.Register(reg, taskInvoker); err != nil {
		return err
	}

	agentInvoker := capability.NewA2AAgentInvoker(reg,
		capability.WithSendTimeout(cfg.Planner.SendTimeout.Std()))

	llm, err := buildLLM(cfg, "planner", llms.APIKeyPlanner)
	if err != nil {
		return err
	}

	pl := planner.New(llm, reg)
	exec := executor.New(reg, agentInvoker, toolInvoker, taskInvoker)
	boundary := server.NewBoundary(pl, exec)

	card := server.Card{
		Name:        cfg.Name,
		Description: cfg.Description,
		Version:     maestro.Version,
	}
	for _, skill := range cfg.Skills {
		card.Skills = append(card.Skills, capability.Skill{
			Name:        skill.Name,
			Description: skill.Description,
		})
	}
	srv := server.NewServer(card, boundary)

	if disco != nil {
		if err := reg.Refresh(ctx); err != nil {
			slog.Warn("Initial fleet refresh failed", "error", err)
		}
		self := &capability.AgentDefinition{
			ID:          cfg.Name,
			Name:        cfg.Name,
			Description: cfg.Description,
			EndpointURL: cfg.EndpointURL,
			Skills:      card.Skills,
		}
		if err := disco.Register(ctx, self); err != nil {
			slog.Warn("Continuing without discovery registration", "error", err)
		} else {
			defer func() {
				deregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := disco.Deregister(deregCtx, self); err != nil {
					slog.Warn("Deregistration failed", "error", err)
				}
			}()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Listen)
	})
	if disco != nil {
		g.Go(func() error {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if err := reg.Refresh(gctx); err != nil {
						slog.Warn("Fleet refresh failed", "error", err)
					}
				}
			}
		})
	}
	if c.Watch {
		g.Go(func() error {
			return config.Watch(gctx, c.Config, func(next *config.Config) {
				slog.Info("Configuration changed; restart to apply server settings",
					"name", next.Name)
			})
		})
	}

	return g.Wait()
}

// buildToolInvoker connects the MCP runtime when configured and publishes
// its tool catalog. Without MCP configuration tool activities fail cleanly.
func buildToolInvoker(ctx context.Context, cfg *config.Config, reg *capability.Registry) (capability.ToolInvoker, mcp.Client, error) {
	if cfg.MCP.Transport == "" {
		return unconfiguredTools{}, nil, nil
	}

	var client mcp.Client
	var err error
	switch cfg.MCP.Transport {
	case "stdio":
		env := make(map[string]string, len(cfg.MCP.Env))
		for _, kv := range cfg.MCP.Env {
			if key, value, ok := strings.Cut(kv, "="); ok {
				env[key] = value
			}
		}
		client, err = mcp.NewStdioClient(mcp.StdioConfig{
			Name:    cfg.Name,
			Command: cfg.MCP.Command,
			Args:    cfg.MCP.Args,
			Env:     env,
		})
	default:
		client, err = mcp.NewHTTPClient(mcp.HTTPConfig{
			Name: cfg.Name,
			URL:  cfg.MCP.URL,
		})
	}
	if err != nil {
		return nil, nil, err
	}

	listCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	tools, err := client.ListTools(listCtx)
	if err != nil {
		slog.Warn("MCP tool enumeration failed; tools register lazily", "error", err)
		return capability.NewMCPToolInvoker(client), client, nil
	}
	for _, tool := range tools {
		if err := reg.RegisterTool(&capability.ToolDefinition{
			ID:          tool.Name,
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}); err != nil {
			slog.Warn("Skipping duplicate tool", "tool", tool.Name, "error", err)
		}
	}
	slog.Info("MCP runtime connected", "transport", cfg.MCP.Transport, "tools", len(tools))

	return capability.NewMCPToolInvoker(client), client, nil
}

// unconfiguredTools rejects tool activities when no MCP runtime is set up.
type unconfiguredTools struct{}

func (unconfiguredTools) Invoke(ctx context.Context, toolID string, params map[string]interface{}) (json.RawMessage, error) {
	return nil, fmt.Errorf("no MCP runtime configured, cannot invoke tool %q", toolID)
}

func buildLLM(cfg *config.Config, role string, fallbackKey llms.APIKeyRole) (llms.Provider, error) {
	llmCfg, ok := cfg.LLM[role]
	if !ok {
		return nil, fmt.Errorf("llm.%s must be configured", role)
	}

	var apiKey string
	if llmCfg.APIKeyEnv != "" {
		apiKey = os.Getenv(llmCfg.APIKeyEnv)
	}
	if apiKey == "" {
		key, err := llms.APIKeyFromEnv(fallbackKey)
		if err != nil {
			return nil, err
		}
		apiKey = key
	}

	return llms.NewOpenAIProvider(llms.OpenAIConfig{
		BaseURL:     llmCfg.BaseURL,
		APIKey:      apiKey,
		Model:       llmCfg.Model,
		Temperature: llmCfg.Temperature,
		MaxTokens:   llmCfg.MaxTokens,
	})
}

// ============================================================================
// DISCOVERY
// ============================================================================

type discoveryCmd struct {
	Listen string `help:"Listen address." default:":7000"`
}

func (c *discoveryCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{
		Addr:    c.Listen,
		Handler: discovery.NewServer(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Discovery service listening", "addr", c.Listen)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

// ============================================================================
// RUN
// ============================================================================

type runCmd struct {
	Workflow string        `arg:"" help:"Path to the workflow JSON file, resolved by the agent."`
	Agent    string        `help:"Base URL of the target agent." default:"http://localhost:8080"`
	Timeout  time.Duration `help:"Overall request timeout." default:"5m"`
}

func (c *runCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := a2aclient.NewHTTPClient(c.Agent)

	msg := a2a.NewTextMessage(a2a.MessageRoleUser, uuid.NewString(), "execute workflow")
	msg.Metadata = map[string]interface{}{"workflow_url": c.Workflow}

	task, err := client.SendTaskMessage(ctx, uuid.NewString(), msg, "", c.Timeout)
	if err != nil {
		return err
	}

	text, _ := a2a.FirstText(task.Status.Message)
	fmt.Println(text)

	if task.Status.State != a2a.TaskStateCompleted {
		return fmt.Errorf("workflow %s: task %s ended %s", c.Workflow, task.ID, task.Status.State)
	}
	return nil
}

// ============================================================================
// ASK
// ============================================================================

type askCmd struct {
	Config   string `help:"Path to the agent config file." default:"agent.toml" type:"path"`
	Query    string `arg:"" help:"Question for the MCP agent loop."`
	MaxLoops int    `help:"Maximum LLM-tool iterations." default:"0"`
}

func (c *askCmd) Run() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if cfg.MCP.Transport == "" {
		return fmt.Errorf("ask requires an MCP runtime in the config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := capability.NewRegistry()
	_, mcpClient, err := buildToolInvoker(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer mcpClient.Close()

	llm, err := buildLLM(cfg, "mcp", llms.APIKeyMCP)
	if err != nil {
		return err
	}

	maxLoops := c.MaxLoops
	if maxLoops <= 0 {
		maxLoops = cfg.Planner.MaxLoops
	}
	loop := agent.NewLoop(llm, mcpClient, agent.Config{
		SystemPrompt: "You are " + cfg.Name + ". Use the available tools to answer precisely.",
		MaxLoops:     maxLoops,
	})

	answer, err := loop.Run(ctx, c.Query)
	if err != nil {
		return err
	}
	fmt.Println(answer)
	return nil
}

// ============================================================================
// VERSION
// ============================================================================

type versionCmd struct{}

func (c *versionCmd) Run() error {
	fmt.Println(maestro.GetVersion().String())
	return nil
}
