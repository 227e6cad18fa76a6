package customer

import (
	"errors"
	"net/http"

	"github.com/abduss/studiovault/internal/auth"
	"github.com/abduss/studiovault/internal/selection"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts customer administration endpoints. The scoped group
// must already run Resolve.
func RegisterRoutes(group *gin.RouterGroup, scoped *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.POST("/customers", auth.RequireStudio(), handler.createCustomer)
	group.GET("/customers", auth.RequireStudio(), handler.listCustomers)
	scoped.GET("", handler.getCustomer)
	scoped.PUT("/limits", auth.RequireStudio(), handler.updateLimits)
}

type httpHandler struct {
	service *Service
}

type createCustomerRequest struct {
	DisplayName string           `json:"display_name" binding:"required,max=255"`
	Limits      selection.Limits `json:"limits"`
}

func (h *httpHandler) createCustomer(c *gin.Context) {
	principal, _ := auth.CurrentPrincipal(c)

	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cust, err := h.service.Create(c.Request.Context(), principal.TenantID, req.DisplayName, req.Limits)
	if err != nil {
		if errors.Is(err, selection.ErrInvalidLimits) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create customer"})
		return
	}

	c.JSON(http.StatusCreated, cust)
}

func (h *httpHandler) listCustomers(c *gin.Context) {
	principal, _ := auth.CurrentPrincipal(c)

	customers, err := h.service.List(c.Request.Context(), principal.TenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list customers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (h *httpHandler) getCustomer(c *gin.Context) {
	cust, _ := FromContext(c)
	c.JSON(http.StatusOK, cust)
}

func (h *httpHandler) updateLimits(c *gin.Context) {
	cust, _ := FromContext(c)

	var limits selection.Limits
	if err := c.ShouldBindJSON(&limits); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.SetLimits(c.Request.Context(), cust.TenantID, cust.ID, limits); err != nil {
		switch {
		case errors.Is(err, selection.ErrInvalidLimits):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ErrCustomerNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "customer not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update limits"})
		}
		return
	}

	c.JSON(http.StatusOK, limits)
}
