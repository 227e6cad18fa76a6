package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/abduss/studiovault/internal/auth"
	"github.com/abduss/studiovault/internal/photo"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type assetCatalog interface {
	List(ctx context.Context, customerID uuid.UUID) ([]photo.Asset, error)
	ByURLs(ctx context.Context, customerID uuid.UUID, urls []string) ([]photo.Asset, error)
	Get(ctx context.Context, customerID, assetID uuid.UUID) (photo.Asset, error)
}

type selectionReader interface {
	SelectedRefs(ctx context.Context, customerID uuid.UUID) ([]string, error)
}

// Handler serves export endpoints.
type Handler struct {
	jobs      *JobRegistry
	exporter  *Exporter
	catalog   assetCatalog
	selection selectionReader
}

// NewHandler constructs the export handler.
func NewHandler(jobs *JobRegistry, exporter *Exporter, catalog assetCatalog, selection selectionReader) *Handler {
	return &Handler{jobs: jobs, exporter: exporter, catalog: catalog, selection: selection}
}

// RegisterRoutes mounts export endpoints on a customer-scoped group.
func (h *Handler) RegisterRoutes(scoped *gin.RouterGroup) {
	scoped.POST("/exports", h.createExport)
	scoped.GET("/exports/:jobID", h.getExport)
	scoped.GET("/exports/:jobID/events", h.streamExport)
	scoped.GET("/exports/:jobID/download", h.downloadExport)
	scoped.GET("/assets/:assetID/export", h.exportOne)
}

type createExportRequest struct {
	Scope string `json:"scope"`
}

// Assets resolves the asset list for a scope. The selection scope is the
// union of selected references across categories, in catalog order.
func (h *Handler) Assets(ctx context.Context, customerID uuid.UUID, scope Scope) ([]photo.Asset, error) {
	if scope == ScopeSelection {
		refs, err := h.selection.SelectedRefs(ctx, customerID)
		if err != nil {
			return nil, err
		}
		return h.catalog.ByURLs(ctx, customerID, refs)
	}
	return h.catalog.List(ctx, customerID)
}

func (h *Handler) createExport(c *gin.Context) {
	scope, ok := auth.CurrentCustomerScope(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createExportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
	}
	exportScope, err := ParseScope(req.Scope)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assets, err := h.Assets(c.Request.Context(), scope.CustomerID, exportScope)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve assets"})
		return
	}

	job, err := h.jobs.Create(scope.TenantID, scope.CustomerID, exportScope, assets)
	if err != nil {
		if errors.Is(err, ErrNoAssets) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "nothing to export"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start export"})
		return
	}

	c.JSON(http.StatusAccepted, job.Status())
}

func (h *Handler) getExport(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job.Status())
}

// streamExport emits the job status on every change until it is terminal.
func (h *Handler) streamExport(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		changed := job.Changed()
		status := job.Status()
		c.SSEvent("progress", status)
		if status.Terminal() {
			return false
		}
		select {
		case <-changed:
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *Handler) downloadExport(c *gin.Context) {
	scope, ok := auth.CurrentCustomerScope(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	jobID, err := uuid.Parse(c.Param("jobID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	f, status, err := h.jobs.Open(scope.CustomerID, jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "export not found"})
		case errors.Is(err, ErrJobNotReady):
			c.JSON(http.StatusConflict, gin.H{"error": "export not ready", "state": status.State})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open export"})
		}
		return
	}
	defer f.Close()

	name := fmt.Sprintf("fotos-%s.zip", status.CreatedAt.Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(c.Writer, c.Request, name, *status.CompletedAt, f)
}

func (h *Handler) exportOne(c *gin.Context) {
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

	a, err := h.catalog.Get(c.Request.Context(), scope.CustomerID, assetID)
	if err != nil {
		if errors.Is(err, photo.ErrAssetNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load asset"})
		return
	}

	var buf bytes.Buffer
	name, _, err := h.exporter.ExportOne(c.Request.Context(), a, &buf)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch asset"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, a.ContentType, buf.Bytes())
}

func (h *Handler) lookup(c *gin.Context) (*Job, bool) {
	scope, ok := auth.CurrentCustomerScope(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	jobID, err := uuid.Parse(c.Param("jobID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return nil, false
	}
	job, err := h.jobs.Get(scope.CustomerID, jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "export not found"})
		return nil, false
	}
	return job, true
}
