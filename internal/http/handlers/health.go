package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck godoc
// @ID          healthCheck
// @Summary     Liveness probe
// @Description Always answers 200 with an empty body.
// @Tags        Health
// @Success     200 {string} string "OK"
// @Router      /health_check [get]
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.Status(http.StatusOK)
}

// Health godoc
// @ID          health
// @Summary     Liveness probe (JSON)
// @Tags        Health
// @Produce     json
// @Success     200 {object} map[string]string
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}
