package photo

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/abduss/studiovault/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RegisterRoutes mounts catalog operations on a customer-scoped group.
func RegisterRoutes(scoped *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	scoped.GET("/assets", handler.listAssets)
	scoped.GET("/assets/:assetID/download", handler.downloadAsset)
	scoped.DELETE("/assets/:assetID", auth.RequireStudio(), handler.deleteAsset)
}

type httpHandler struct {
	service *Service
}

func (h *httpHandler) listAssets(c *gin.Context) {
	scope, ok := auth.CurrentCustomerScope(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	list, err := h.service.List(c.Request.Context(), scope.CustomerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list assets"})
		return
	}
	if list == nil {
		list = []Asset{}
	}

	c.JSON(http.StatusOK, gin.H{"assets": list})
}

func (h *httpHandler) downloadAsset(c *gin.Context) {
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

	a, reader, err := h.service.Download(c.Request.Context(), scope.CustomerID, assetID)
	if err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch asset"})
		return
	}
	defer reader.Close()

	name := a.Filename
	if name == "" {
		name = a.ID.String() + ".jpg"
	}
	c.Header("Content-Type", a.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("Content-Length", fmt.Sprintf("%d", a.SizeBytes))

	if _, err := io.Copy(c.Writer, reader); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
}

func (h *httpHandler) deleteAsset(c *gin.Context) {
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

	if err := h.service.Delete(c.Request.Context(), scope.TenantID, scope.CustomerID, assetID); err != nil {
		switch {
		case errors.Is(err, ErrAssetNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete asset"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}
