package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bobmcallan/vire-gateway/internal/common"
	"github.com/bobmcallan/vire-gateway/internal/gateway"
	"github.com/gin-gonic/gin"
)

// maxArgumentsSize caps a call body.
const maxArgumentsSize = 1 << 20

// ReloadFunc reloads the peer catalog and returns the new status.
type ReloadFunc func(ctx context.Context) gateway.Status

// CapabilityHandler lists, describes and invokes gateway operations.
type CapabilityHandler struct {
	gw     Gateway
	reload ReloadFunc
	logger *common.Logger
}

// NewCapabilityHandler creates a capability handler. reload may be nil, in
// which case POST /api/catalog/reload answers 501.
func NewCapabilityHandler(gw Gateway, reload ReloadFunc, logger *common.Logger) *CapabilityHandler {
	return &CapabilityHandler{gw: gw, reload: reload, logger: logger}
}

// List handles GET /api/capabilities.
func (h *CapabilityHandler) List(c *gin.Context) {
	ops := h.gw.Operations()
	descs := make([]gateway.Descriptor, 0, len(ops))
	for _, op := range ops {
		descs = append(descs, op.Descriptor())
	}
	c.JSON(http.StatusOK, gin.H{
		"degraded":     h.gw.Status().Degraded,
		"capabilities": descs,
	})
}

// Get handles GET /api/capabilities/:name.
func (h *CapabilityHandler) Get(c *gin.Context) {
	op, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, op.Descriptor())
}

// Call handles POST /api/capabilities/:name/call. The body is the argument
// object; an empty body calls with no arguments.
func (h *CapabilityHandler) Call(c *gin.Context) {
	op, ok := h.lookup(c)
	if !ok {
		return
	}

	args, err := readArguments(c.Request.Body)
	if err != nil {
		WriteError(c, http.StatusBadRequest, err.Error())
		return
	}

	res := op.Call(c.Request.Context(), args)
	if res.Failed() {
		h.logger.Warn().
			Str("capability", op.Name()).
			Str("kind", string(res.Err.Kind)).
			Str("correlation_id", c.GetString(CorrelationIDKey)).
			Msg("capability call failed")
		c.JSON(ErrorStatus(res.Err), res.Err.Payload())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"capability": op.Name(),
		"result":     res.Content,
	})
}

// Reload handles POST /api/catalog/reload.
func (h *CapabilityHandler) Reload(c *gin.Context) {
	if h.reload == nil {
		WriteError(c, http.StatusNotImplemented, "catalog reload is not available")
		return
	}
	c.JSON(http.StatusOK, h.reload(c.Request.Context()))
}

func (h *CapabilityHandler) lookup(c *gin.Context) (gateway.Operation, bool) {
	name := c.Param("name")
	op, ok := h.gw.Operation(name)
	if !ok {
		WriteError(c, http.StatusNotFound, "unknown capability "+name)
		return nil, false
	}
	return op, true
}

func readArguments(body io.Reader) (map[string]any, error) {
	args := map[string]any{}
	if body == nil {
		return args, nil
	}
	data, err := io.ReadAll(io.LimitReader(body, maxArgumentsSize))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return args, nil
	}
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, errInvalidArguments
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

var errInvalidArguments = errors.New("arguments must be a JSON object")
