package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/abduss/studiovault/internal/auth"
	"github.com/abduss/studiovault/internal/config"
	"github.com/abduss/studiovault/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeLister struct{ err error }

func (f fakeLister) ListBuckets(context.Context) ([]minio.BucketInfo, error) { return nil, f.err }

func TestReadinessReportsDegradedComponent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	router := NewRouter(Dependencies{
		Config:      config.Config{Metrics: config.MetricsConfig{PrometheusPath: "/metrics"}},
		DB:          fakePinger{},
		ObjectStore: fakeLister{err: errors.New("connection refused")},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "minio")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestAPIRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	router := NewRouter(Dependencies{
		Config:      config.Config{Metrics: config.MetricsConfig{PrometheusPath: "/metrics"}},
		AuthService: auth.NewService(config.AuthConfig{AccessTokenSecret: "secret", Issuer: "i", Audience: "a"}),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/customers", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
