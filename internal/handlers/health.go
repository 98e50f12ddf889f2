package handlers

import (
	"net/http"

	"github.com/bobmcallan/vire-gateway/internal/common"
	"github.com/gin-gonic/gin"
)

// HealthHandler reports gateway and peer session state.
type HealthHandler struct {
	gw     Gateway
	logger *common.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(gw Gateway, logger *common.Logger) *HealthHandler {
	return &HealthHandler{gw: gw, logger: logger}
}

// Serve handles GET /api/health. A degraded gateway still answers 200 since
// stub capabilities and the clock keep serving.
func (h *HealthHandler) Serve(c *gin.Context) {
	st := h.gw.Status()
	status := "ok"
	if st.Degraded {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"gateway": st,
	})
}
