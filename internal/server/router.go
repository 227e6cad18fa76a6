package server

import (
	"github.com/abduss/studiovault/internal/archive"
	"github.com/abduss/studiovault/internal/auth"
	"github.com/abduss/studiovault/internal/config"
	"github.com/abduss/studiovault/internal/customer"
	"github.com/abduss/studiovault/internal/ingest"
	"github.com/abduss/studiovault/internal/logger"
	"github.com/abduss/studiovault/internal/metrics"
	"github.com/abduss/studiovault/internal/photo"
	"github.com/abduss/studiovault/internal/presigned"
	"github.com/abduss/studiovault/internal/quota"
	"github.com/abduss/studiovault/internal/selection"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config      config.Config
	Logger      *zap.Logger
	DB          Pinger
	ObjectStore BucketLister
	AuthService *auth.Service
	Customers   *customer.Service
	Ledger      *quota.Ledger
	Photos      *photo.Service
	Links       *presigned.Service
	Pipeline    *ingest.Pipeline
	Governor    *selection.Governor
	Exporter    *archive.Exporter
	Exports     *archive.JobRegistry
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware())
	router.Use(logger.AccessLog(deps.Logger))
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, deps)
	metrics.Register(router, deps.Config.Metrics.PrometheusPath)

	if deps.AuthService == nil {
		return router
	}

	api := router.Group("/v1")
	api.Use(auth.AuthMiddleware(deps.AuthService))

	if deps.Ledger != nil {
		quota.RegisterRoutes(api, deps.Ledger)
	}
	if deps.Customers == nil {
		return router
	}

	scoped := api.Group("/customers/:customerID")
	scoped.Use(customer.Resolve(deps.Customers))
	customer.RegisterRoutes(api, scoped, deps.Customers)

	if deps.Photos != nil {
		photo.RegisterRoutes(scoped, deps.Photos)
	}
	if deps.Links != nil {
		presigned.NewHandler(deps.Links).RegisterRoutes(scoped)
	}
	if deps.Pipeline != nil {
		ingest.RegisterRoutes(scoped, deps.Pipeline, deps.Config.Server.MultipartMemBytes)
	}
	if deps.Governor != nil {
		selection.RegisterRoutes(scoped, deps.Governor)
	}
	if deps.Exports != nil && deps.Photos != nil && deps.Governor != nil {
		archive.NewHandler(deps.Exports, deps.Exporter, deps.Photos, deps.Governor).RegisterRoutes(scoped)
	}

	return router
}
