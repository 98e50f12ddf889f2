package handlers

import (
	"net/http"

	"github.com/bobmcallan/vire-gateway/internal/config"
	"github.com/gin-gonic/gin"
)

// ServeVersion handles GET /api/version.
func ServeVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":    config.GetVersion(),
		"build":      config.GetBuild(),
		"git_commit": config.GetGitCommit(),
	})
}
