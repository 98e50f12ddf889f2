// Package mcp republishes gateway operations as MCP tools over streamable
// HTTP or stdio.
package mcp

import (
	"net/http"
	"sync"

	"github.com/bobmcallan/vire-gateway/internal/common"
	"github.com/bobmcallan/vire-gateway/internal/config"
	"github.com/bobmcallan/vire-gateway/internal/gateway"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Gateway is the part of *gateway.Gateway the MCP surface uses.
type Gateway interface {
	Operations() []gateway.Operation
	Status() gateway.Status
}

// Handler is the HTTP handler for the MCP endpoint.
// It wraps mcp-go's StreamableHTTPServer and delegates to it.
type Handler struct {
	server     *mcpserver.MCPServer
	streamable *mcpserver.StreamableHTTPServer
	gw         Gateway
	logger     *common.Logger

	mu sync.Mutex
}

// NewHandler creates the MCP server and registers the gateway's current
// operations.
func NewHandler(gw Gateway, logger *common.Logger) *Handler {
	mcpSrv := mcpserver.NewMCPServer(
		"vire-gateway",
		config.GetVersion(),
		mcpserver.WithToolCapabilities(true),
	)

	h := &Handler{
		server: mcpSrv,
		streamable: mcpserver.NewStreamableHTTPServer(mcpSrv,
			mcpserver.WithStateLess(true),
		),
		gw:     gw,
		logger: logger,
	}
	count := h.Refresh()

	logger.Info().
		Int("tools", count).
		Str("peer", gw.Status().PeerURL).
		Msg("MCP handler initialized")
	return h
}

// Refresh replaces the registered tools with the gateway's current
// operations. Call it after the gateway reloads its catalog.
func (h *Handler) Refresh() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	tools := serverTools(h.gw)
	h.server.SetTools(tools...)
	h.logger.Debug().Int("tools", len(tools)).Msg("MCP tools refreshed")
	return len(tools)
}

// MCPServer returns the underlying server, for the stdio transport.
func (h *Handler) MCPServer() *mcpserver.MCPServer {
	return h.server
}

// ServeStdio serves MCP over stdin/stdout until EOF or a signal.
func (h *Handler) ServeStdio() error {
	return mcpserver.ServeStdio(h.server)
}

// ServeHTTP delegates to the mcp-go StreamableHTTPServer.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.streamable.ServeHTTP(w, r)
}
