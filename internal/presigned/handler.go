package presigned

import (
	"errors"
	"net/http"
	"time"

	"github.com/abduss/studiovault/internal/auth"
	"github.com/abduss/studiovault/internal/photo"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the link endpoint on a customer-scoped group.
func (h *Handler) RegisterRoutes(scoped *gin.RouterGroup) {
	scoped.GET("/assets/:assetID/link", h.AssetLink)
}

func (h *Handler) AssetLink(c *gin.Context) {
	scope, ok := auth.CurrentCustomerScope(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	assetID, err := uuid.Parse(c.Param("assetID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}

	var ttl time.Duration
	if ttlParam := c.Query("ttl"); ttlParam != "" {
		ttl, err = time.ParseDuration(ttlParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ttl"})
			return
		}
	}

	link, err := h.service.AssetLink(c.Request.Context(), scope.CustomerID, assetID, ttl)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidTTL):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ttl"})
		case errors.Is(err, photo.ErrAssetNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign link"})
		}
		return
	}

	c.JSON(http.StatusOK, link)
}
