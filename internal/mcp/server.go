package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/keep/internal/config"
	"github.com/hpungsan/keep/internal/keeper"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"keep_put": {
		def:     putToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePut },
	},
	"keep_get": {
		def:     getToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"keep_find": {
		def:     findToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFind },
	},
	"keep_query_tag": {
		def:     queryTagToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleQueryTag },
	},
	"keep_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"keep_delete": {
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"keep_collections": {
		def:     collectionsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCollections },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with keep tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(k *keeper.Keeper, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"keep",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(k)

	disabled := make(map[string]bool)
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(k *keeper.Keeper, cfg *config.Config, version string) error {
	s := NewServer(k, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
