// Package handlers implements the REST surface of the gateway on gin.
package handlers

import (
	"net/http"

	"github.com/bobmcallan/vire-gateway/internal/gateway"
	"github.com/gin-gonic/gin"
)

// Gateway is the part of *gateway.Gateway the REST handlers use.
type Gateway interface {
	Status() gateway.Status
	Operations() []gateway.Operation
	Operation(name string) (gateway.Operation, bool)
}

// CorrelationIDKey is the gin context key holding the request correlation id.
const CorrelationIDKey = "correlation_id"

// WriteError writes a standard error JSON response and aborts the chain.
func WriteError(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, gin.H{
		"status": "error",
		"error":  message,
	})
}

// ErrorStatus maps a gateway error kind to an HTTP status.
func ErrorStatus(err *gateway.Error) int {
	switch err.Kind {
	case gateway.KindValidation:
		return http.StatusBadRequest
	case gateway.KindSession, gateway.KindUnavailable:
		return http.StatusServiceUnavailable
	case gateway.KindTransport, gateway.KindRemote, gateway.KindDecode:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
