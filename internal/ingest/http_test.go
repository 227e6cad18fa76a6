package ingest

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/abduss/studiovault/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPUploadReturnsSummary(t *testing.T) {
	fx := newFixture(1_000_000)
	router := newUploadRouter(fx)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, fx, map[string]string{"a.jpg": "aaa", "b.jpg": "corrupt"}))

	require.Equal(t, http.StatusOK, rec.Code)
	var summary Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Committed)
	assert.Equal(t, 1, summary.Failed)
	assert.True(t, summary.Done)
}

func TestHTTPUploadPreflightRejection(t *testing.T) {
	fx := newFixture(2)
	router := newUploadRouter(fx)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, fx, map[string]string{"a.jpg": "aaa"}))

	require.Equal(t, http.StatusInsufficientStorage, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "quota exceeded", body["error"])
	assert.EqualValues(t, 3, body["requested_bytes"])
	assert.Zero(t, fx.compressor.callCount())
}

func TestHTTPUploadRequiresStudio(t *testing.T) {
	fx := newFixture(1_000_000)
	router := gin.New()
	scoped := router.Group("/customers/:customerID", func(c *gin.Context) {
		auth.SetPrincipal(c, auth.Principal{TenantID: fx.target.TenantID, Role: auth.RoleCustomer, CustomerID: fx.target.CustomerID})
		auth.SetCustomerScope(c, auth.CustomerScope{TenantID: fx.target.TenantID, CustomerID: fx.target.CustomerID})
		c.Next()
	})
	RegisterRoutes(scoped, fx.pipeline, 1<<20)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, fx, map[string]string{"a.jpg": "aaa"}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func newUploadRouter(fx *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	scoped := router.Group("/customers/:customerID", func(c *gin.Context) {
		auth.SetPrincipal(c, auth.Principal{TenantID: fx.target.TenantID, Role: auth.RoleStudio})
		auth.SetCustomerScope(c, auth.CustomerScope{TenantID: fx.target.TenantID, CustomerID: fx.target.CustomerID})
		c.Next()
	})
	RegisterRoutes(scoped, fx.pipeline, 1<<20)
	return router
}

func multipartUpload(t *testing.T, fx *fixture, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/customers/"+fx.target.CustomerID.String()+"/uploads", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
