package ingest

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/abduss/studiovault/internal/auth"
	"github.com/abduss/studiovault/internal/quota"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RegisterRoutes mounts upload endpoints on a customer-scoped group. Uploads
// are studio-only.
func RegisterRoutes(scoped *gin.RouterGroup, pipeline *Pipeline, maxMemory int64) {
	handler := &httpHandler{pipeline: pipeline, maxMemory: maxMemory}
	uploads := scoped.Group("/uploads", auth.RequireStudio())
	uploads.POST("", handler.upload)
	uploads.GET("/:batchID", handler.status)
	uploads.DELETE("/:batchID/files/:fileID", handler.cancelFile)
}

type httpHandler struct {
	pipeline  *Pipeline
	maxMemory int64
}

// upload accepts multipart "files". With Accept: text/event-stream the
// response is the live progress stream; otherwise it is the final summary.
// The request stays open for the whole batch because the parts are backed
// by the request's temporary files.
func (h *httpHandler) upload(c *gin.Context) {
	scope, ok := auth.CurrentCustomerScope(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := c.Request.ParseMultipartForm(h.maxMemory); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	headers := c.Request.MultipartForm.File["files"]
	sources := make([]FileSource, 0, len(headers))
	for _, fh := range headers {
		sources = append(sources, FileSource{
			Filename: fh.Filename,
			Size:     fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}

	batch, err := h.pipeline.SubmitBatch(c.Request.Context(), Target{TenantID: scope.TenantID, CustomerID: scope.CustomerID}, sources)
	if err != nil {
		var exceeded *quota.ExceededError
		switch {
		case errors.As(err, &exceeded):
			c.JSON(http.StatusInsufficientStorage, gin.H{
				"error":           "quota exceeded",
				"used_bytes":      exceeded.Used,
				"limit_bytes":     exceeded.Limit,
				"requested_bytes": exceeded.Requested,
			})
		case errors.Is(err, ErrEmptyBatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": "files field is required"})
		case errors.Is(err, ErrTooManyFiles):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start upload"})
		}
		return
	}

	if !strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		for range batch.Events() {
		}
		c.JSON(http.StatusOK, batch.Wait())
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.SSEvent("batch", batch.Snapshot())
	c.Writer.Flush()

	events := batch.Events()
	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			c.SSEvent("summary", batch.Wait())
			return false
		}
		c.SSEvent("progress", ev)
		return true
	})
}

func (h *httpHandler) status(c *gin.Context) {
	batch, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, batch.Snapshot())
}

func (h *httpHandler) cancelFile(c *gin.Context) {
	batch, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := batch.Cancel(c.Param("fileID")); err != nil {
		switch {
		case errors.Is(err, ErrFileNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		case errors.Is(err, ErrFileNotPending):
			c.JSON(http.StatusConflict, gin.H{"error": "file already started"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel file"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) lookup(c *gin.Context) (*Batch, bool) {
	scope, ok := auth.CurrentCustomerScope(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	batchID, err := uuid.Parse(c.Param("batchID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch id"})
		return nil, false
	}
	batch, ok := h.pipeline.Batch(batchID)
	if !ok || batch.Target.CustomerID != scope.CustomerID {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return nil, false
	}
	return batch, true
}
