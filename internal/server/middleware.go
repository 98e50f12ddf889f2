package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bobmcallan/vire-gateway/internal/handlers"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxBodySize limits request bodies, /mcp included.
const maxBodySize = 1 << 20

// middleware returns the chain in execution order.
func (s *Server) middleware() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		s.correlationIDMiddleware(),
		s.loggingMiddleware(),
		securityHeadersMiddleware(),
		cors.New(corsConfig(s.app.Config.Server.CORSOrigins)),
		maxBodySizeMiddleware(maxBodySize),
		s.recoveryMiddleware(),
	}
}

// correlationIDMiddleware extracts or generates a correlation ID for request tracking.
func (s *Server) correlationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Request-ID")
		if correlationID == "" {
			correlationID = c.GetHeader("X-Correlation-ID")
		}
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Header("X-Correlation-ID", correlationID)
		c.Set(handlers.CorrelationIDKey, correlationID)
		c.Next()
	}
}

// loggingMiddleware logs HTTP requests and responses.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := s.logger.Debug()
		if status >= 500 {
			event = s.logger.Error()
		} else if status >= 400 {
			event = s.logger.Warn()
		}

		event.
			Str("correlation_id", c.GetString(handlers.CorrelationIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Int("bytes", c.Writer.Size()).
			Str("remote", c.ClientIP()).
			Msg("HTTP request")
	}
}

// recoveryMiddleware recovers from panics and returns a 500 error.
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error().
					Str("correlation_id", c.GetString(handlers.CorrelationIDKey)).
					Str("error", fmt.Sprintf("%v", err)).
					Str("path", c.Request.URL.Path).
					Msg("panic recovered")

				handlers.WriteError(c, http.StatusInternalServerError, "Internal server error")
			}
		}()

		c.Next()
	}
}

// securityHeadersMiddleware sets standard security headers on all responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// maxBodySizeMiddleware limits the size of request bodies.
func maxBodySizeMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// corsConfig builds the CORS policy. A "*" entry allows every origin.
func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Mcp-Session-Id", "X-Request-ID"}
	cfg.ExposeHeaders = []string{"Mcp-Session-Id", "X-Correlation-ID"}

	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
