// Package mcp exposes document tools to agents over the Model Context
// Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/poiesic/docrag/tools"
)

// Version is the MCP server version.
const Version = "0.1.0"

// Registry registers tools.Tool values on an MCP server.
type Registry struct {
	server *mcp.Server
	logger *slog.Logger

	mu    sync.Mutex
	names map[string]struct{}
}

var _ tools.Registry = (*Registry)(nil)

// NewRegistry creates a registry backed by a new MCP server named name.
func NewRegistry(name string) *Registry {
	impl := &mcp.Implementation{
		Name:    name,
		Version: Version,
	}
	return &Registry{
		server: mcp.NewServer(impl, nil),
		logger: slog.Default().With("component", "mcp"),
		names:  make(map[string]struct{}),
	}
}

// Server returns the underlying MCP server.
func (r *Registry) Server() *mcp.Server {
	return r.server
}

func (r *Registry) Register(t tools.Tool) error {
	if err := t.Validate(); err != nil {
		return err
	}
	tool := &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
	}
	// Without parameters the schema is inferred as an object with any properties.
	if t.Parameters != nil {
		tool.InputSchema = t.Parameters
	}
	mcp.AddTool(r.server, tool, r.handler(t))

	r.mu.Lock()
	r.names[t.Name] = struct{}{}
	r.mu.Unlock()
	r.logger.Debug("registered tool", "tool", t.Name)
	return nil
}

func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	_, ok := r.names[name]
	delete(r.names, name)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", tools.ErrUnknownTool, name)
	}
	r.server.RemoveTools(name)
	r.logger.Debug("unregistered tool", "tool", name)
	return nil
}

// Names returns the registered tool names in order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	r.mu.Unlock()
	slices.Sort(names)
	return names
}

// Run serves the registered tools over stdio until ctx is cancelled or the
// client disconnects.
func (r *Registry) Run(ctx context.Context) error {
	return r.server.Run(ctx, &mcp.StdioTransport{})
}

// handler adapts a tool handler. Results are returned as JSON text; argument
// errors are reported as tool errors so the agent can correct its call.
func (r *Registry) handler(t tools.Tool) mcp.ToolHandlerFor[map[string]any, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		out, err := t.Handler(ctx, args)
		if err != nil {
			r.logger.Warn("tool call failed", "tool", t.Name, "err", err)
			return errorResult(err), nil, nil
		}
		return textResult(out)
	}
}

func textResult(out any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
