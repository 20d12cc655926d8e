// Package metaserver exposes the meta-toolset — discover, provision,
// execute, register — as MCP tools in their own right, so a client that
// speaks only MCP can drive Tool Gating without ever touching the HTTP
// surface.
package metaserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/shuaige121/tool-gating-mcp/internal/discovery"
	"github.com/shuaige121/tool-gating-mcp/internal/logger"
	"github.com/shuaige121/tool-gating-mcp/internal/proxy"
	"github.com/shuaige121/tool-gating-mcp/internal/registry"
)

// Config holds the listener configuration for the meta-toolset server.
type Config struct {
	Host string
	Port string
}

// Server is the streamable-HTTP MCP server exposing the meta-toolset.
type Server struct {
	config     *Config
	mcpServer  *server.MCPServer
	httpServer *http.Server
	handler    *Handler
}

// New constructs a meta-toolset server over the given core components.
func New(config *Config, reg *registry.Registry, disc *discovery.Engine, p *proxy.Proxy) *Server {
	mcpServer := server.NewMCPServer(
		"tool-gating-mcp",
		"0.1.0",
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	handler := &Handler{registry: reg, discovery: disc, proxy: p}
	registerTools(mcpServer, handler)

	addr := fmt.Sprintf("%s:%s", config.Host, config.Port)
	streamableServer := server.NewStreamableHTTPServer(
		mcpServer,
		server.WithEndpointPath("/mcp"),
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           streamableServer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{config: config, mcpServer: mcpServer, httpServer: httpServer, handler: handler}
}

// Start serves the meta-toolset until the listener fails or is closed.
func (s *Server) Start() error {
	logger.Infof("starting meta-toolset MCP server on http://%s/mcp", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("meta-toolset server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetAddress returns the meta-toolset's MCP endpoint URL.
func (s *Server) GetAddress() string {
	return fmt.Sprintf("http://%s/mcp", s.httpServer.Addr)
}

func registerTools(mcpServer *server.MCPServer, handler *Handler) {
	mcpServer.AddTool(mcp.Tool{
		Name:        "discover",
		Description: "Rank registered tools against a natural-language query and optional tags",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural-language description of the capability needed",
				},
				"tags": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Tags to boost matching tools",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of matches to return (default 10)",
				},
			},
			Required: []string{"query"},
		},
	}, handler.Discover)

	mcpServer.AddTool(mcp.Tool{
		Name:        "provision",
		Description: "Trim an explicit list of tool ids to a token and count budget",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tool_ids": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Tool ids to provision, highest priority first",
				},
				"max_tools": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of tools to include (default 10)",
				},
				"max_tokens": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum combined token cost to include (default 2000)",
				},
			},
			Required: []string{"tool_ids"},
		},
	}, handler.Provision)

	mcpServer.AddTool(mcp.Tool{
		Name:        "execute",
		Description: "Invoke a registered tool by id, forwarding to its owning backend",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tool_id": map[string]interface{}{
					"type":        "string",
					"description": "Flat tool id, as returned by discover or provision",
				},
				"arguments": map[string]interface{}{
					"type":        "object",
					"description": "Arguments forwarded to the tool's native call",
				},
			},
			Required: []string{"tool_id"},
		},
	}, handler.Execute)

	mcpServer.AddTool(mcp.Tool{
		Name:        "register",
		Description: "Register one locally defined tool descriptor in the registry",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id":          map[string]interface{}{"type": "string"},
				"name":        map[string]interface{}{"type": "string"},
				"description": map[string]interface{}{"type": "string"},
				"tags": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"type": "string"},
				},
				"estimated_tokens": map[string]interface{}{"type": "integer"},
			},
			Required: []string{"id", "name", "description"},
		},
	}, handler.Register)
}
