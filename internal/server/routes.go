package server

import (
	"net/http"

	"github.com/bobmcallan/vire-gateway/internal/handlers"
	"github.com/gin-gonic/gin"
)

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	health := handlers.NewHealthHandler(s.app.Gateway, s.logger)
	capabilities := handlers.NewCapabilityHandler(s.app.Gateway, s.app.Reload, s.logger)

	// MCP endpoint (JSON-RPC over streamable HTTP)
	if s.app.MCPHandler != nil {
		s.engine.Any("/mcp", gin.WrapH(s.app.MCPHandler))
	}

	api := s.engine.Group("/api")
	{
		api.GET("/health", health.Serve)
		api.GET("/version", handlers.ServeVersion)
		api.GET("/capabilities", capabilities.List)
		api.GET("/capabilities/:name", capabilities.Get)
		api.POST("/capabilities/:name/call", capabilities.Call)
		api.POST("/catalog/reload", capabilities.Reload)
	}

	s.engine.NoRoute(s.handleNotFound)
}

// handleNotFound returns a JSON 404 for unmatched routes.
func (s *Server) handleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":   "Not Found",
		"message": "The requested endpoint does not exist",
	})
}
