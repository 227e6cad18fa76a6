package quota

import (
	"net/http"

	"github.com/abduss/studiovault/internal/auth"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the read-only usage endpoint for studio operators.
func RegisterRoutes(group *gin.RouterGroup, ledger *Ledger) {
	handler := &httpHandler{ledger: ledger}
	group.GET("/quota", auth.RequireStudio(), handler.getUsage)
}

type httpHandler struct {
	ledger *Ledger
}

func (h *httpHandler) getUsage(c *gin.Context) {
	principal, _ := auth.CurrentPrincipal(c)

	usage, err := h.ledger.Usage(c.Request.Context(), principal.TenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load quota"})
		return
	}
	c.JSON(http.StatusOK, usage)
}
