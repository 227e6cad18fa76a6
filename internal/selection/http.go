package selection

import (
	"errors"
	"net/http"

	"github.com/abduss/studiovault/internal/auth"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts selection endpoints on a customer-scoped group.
func RegisterRoutes(scoped *gin.RouterGroup, governor *Governor) {
	handler := &httpHandler{governor: governor}
	scoped.GET("/selection", handler.getSelection)
	scoped.POST("/selection/toggle", auth.RequireCustomer(), handler.toggle)
	scoped.POST("/selection/submit", auth.RequireCustomer(), handler.submit)
}

type httpHandler struct {
	governor *Governor
}

type toggleRequest struct {
	AssetRef string `json:"asset_ref" binding:"required"`
	Category string `json:"category" binding:"required"`
}

func (h *httpHandler) getSelection(c *gin.Context) {
	scope, _ := auth.CurrentCustomerScope(c)

	summary, err := h.governor.Get(c.Request.Context(), scope.CustomerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load selection"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) toggle(c *gin.Context) {
	scope, _ := auth.CurrentCustomerScope(c)

	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	category, err := ParseCategory(req.Category)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.governor.Toggle(c.Request.Context(), scope.CustomerID, req.AssetRef, category)
	if err != nil {
		switch {
		case errors.Is(err, ErrSelectionSubmitted):
			c.JSON(http.StatusConflict, gin.H{"accepted": false, "reason": "submitted", "error": err.Error()})
		case errors.Is(err, ErrAssetNotInCatalog):
			c.JSON(http.StatusNotFound, gin.H{"accepted": false, "error": "asset not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to toggle selection"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) submit(c *gin.Context) {
	scope, _ := auth.CurrentCustomerScope(c)

	sel, err := h.governor.Submit(c.Request.Context(), scope.TenantID, scope.CustomerID)
	if err != nil {
		var invalid *InvalidSubmissionError
		switch {
		case errors.As(err, &invalid):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"accepted":           false,
				"invalid_categories": invalid.Categories(),
				"deviations":         invalid.Deviations,
			})
		case errors.Is(err, ErrSelectionSubmitted):
			c.JSON(http.StatusConflict, gin.H{"accepted": false, "error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit selection"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"accepted": true, "selection": sel})
}
