// Package mcp provides a generation adapter that invokes a tool on an MCP
// server over stdio and adopts the tool result as the output.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/evalgate/evalgate/internal/domain/eval"
	"github.com/evalgate/evalgate/internal/registry"
)

// ToolAdapterConfig configures a ToolAdapter.
type ToolAdapterConfig struct {
	// Command launches the MCP server (stdio transport).
	Command string
	// Args are the server command arguments.
	Args []string
	// Env entries are appended to the parent environment.
	Env []string
	// Tool is the tool invoked per item. The item input map becomes the
	// tool arguments.
	Tool string
}

// ToolAdapter calls one MCP tool per dataset item. The server process is
// started lazily on the first Generate and reused for the rest of the run.
type ToolAdapter struct {
	cfg    ToolAdapterConfig
	logger *slog.Logger

	mu      sync.Mutex
	session *mcp.ClientSession
}

// NewToolAdapter creates an MCP tool-calling adapter.
func NewToolAdapter(cfg ToolAdapterConfig, logger *slog.Logger) (*ToolAdapter, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("tool adapter config missing %q", "command")
	}
	if cfg.Tool == "" {
		return nil, fmt.Errorf("tool adapter config missing %q", "tool")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolAdapter{cfg: cfg, logger: logger}, nil
}

// connect establishes the stdio session on first use.
func (a *ToolAdapter) connect(ctx context.Context) (*mcp.ClientSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		return a.session, nil
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "evalgate", Version: "v1.0.0"}, nil)
	cmd := exec.Command(a.cfg.Command, a.cfg.Args...)
	cmd.Stderr = os.Stderr
	if len(a.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), a.cfg.Env...)
	}

	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to tool server: %w", err)
	}

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}
	found := false
	for _, tool := range tools.Tools {
		if tool.Name == a.cfg.Tool {
			found = true
			break
		}
	}
	if !found {
		_ = session.Close()
		return nil, fmt.Errorf("server does not expose tool %q", a.cfg.Tool)
	}

	a.session = session
	return session, nil
}

// Generate invokes the configured tool with the item input as arguments
// and returns the concatenated text content. The model parameter is
// ignored; tool servers pick their own backends.
func (a *ToolAdapter) Generate(ctx context.Context, input map[string]any, _ string) (eval.Generation, error) {
	session, err := a.connect(ctx)
	if err != nil {
		return eval.Generation{}, err
	}

	start := time.Now()
	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      a.cfg.Tool,
		Arguments: input,
	})
	if err != nil {
		return eval.Generation{}, fmt.Errorf("call tool %q: %w", a.cfg.Tool, err)
	}
	if result.IsError {
		return eval.Generation{}, fmt.Errorf("tool %q reported an error: %s", a.cfg.Tool, textContent(result))
	}

	latency := time.Since(start).Milliseconds()
	a.logger.Debug("tool call complete", "tool", a.cfg.Tool, "latency_ms", latency)

	args, _ := json.Marshal(input)
	env := eval.Enriched{
		FinalOutput: textContent(result),
		Metrics:     eval.GenerationMetrics{LatencyMS: latency},
		ToolsCalled: []eval.ToolCall{{Name: a.cfg.Tool, Arguments: args}},
	}
	return eval.Generation{
		Output:   eval.EnrichedOutput(env),
		Metadata: map[string]any{"latency_ms": latency, "tool": a.cfg.Tool},
	}, nil
}

// Close shuts down the server session.
func (a *ToolAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return nil
	}
	err := a.session.Close()
	a.session = nil
	return err
}

// textContent joins the text parts of a tool result.
func textContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func init() {
	registry.Adapters.MustRegister("mcp_tool", func(config map[string]any) (eval.Adapter, error) {
		cfg := ToolAdapterConfig{}
		cfg.Command, _ = config["command"].(string)
		cfg.Tool, _ = config["tool"].(string)
		if args, ok := config["args"].([]any); ok {
			for _, a := range args {
				cfg.Args = append(cfg.Args, fmt.Sprint(a))
			}
		}
		if env, ok := config["env"].([]any); ok {
			for _, e := range env {
				cfg.Env = append(cfg.Env, fmt.Sprint(e))
			}
		}
		return NewToolAdapter(cfg, nil)
	})
}
