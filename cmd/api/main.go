package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/abduss/studiovault/internal/archive"
	"github.com/abduss/studiovault/internal/auth"
	"github.com/abduss/studiovault/internal/config"
	"github.com/abduss/studiovault/internal/customer"
	"github.com/abduss/studiovault/internal/events"
	"github.com/abduss/studiovault/internal/imaging"
	"github.com/abduss/studiovault/internal/ingest"
	"github.com/abduss/studiovault/internal/logger"
	"github.com/abduss/studiovault/internal/metrics"
	"github.com/abduss/studiovault/internal/photo"
	"github.com/abduss/studiovault/internal/presigned"
	"github.com/abduss/studiovault/internal/quota"
	"github.com/abduss/studiovault/internal/selection"
	"github.com/abduss/studiovault/internal/server"
	"github.com/abduss/studiovault/internal/storage"
	"github.com/abduss/studiovault/internal/tracing"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const exportSweepInterval = time.Minute

func main() {
	_ = godotenv.Load()

	zlog, err := logger.Init()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal("load config", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	metrics.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		zlog.Fatal("init tracing", zap.Error(err))
	}

	dbPool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		zlog.Fatal("connect postgres", zap.Error(err))
	}
	defer dbPool.Close()

	if err := storage.EnsureSchema(ctx, dbPool); err != nil {
		zlog.Fatal("ensure schema", zap.Error(err))
	}

	minioClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		zlog.Fatal("connect minio", zap.Error(err))
	}
	if err := storage.EnsureBucket(ctx, minioClient, cfg.MinIO.Bucket, cfg.MinIO.Region); err != nil {
		zlog.Fatal("ensure bucket", zap.Error(err))
	}

	publisher := events.New(cfg.Kafka)
	defer publisher.Close()

	authService := auth.NewService(cfg.Auth)

	customerRepo := customer.NewRepository(dbPool)
	customerService := customer.NewService(customerRepo)

	ledger := quota.NewLedger(quota.NewRepository(dbPool), cfg.Quota.DefaultLimitBytes, zlog.Named("quota"))

	objectStore := photo.NewMinIOStore(minioClient)
	photoService := photo.NewService(photo.Params{
		Repo:          photo.NewRepository(dbPool),
		Objects:       objectStore,
		Ledger:        ledger,
		Publisher:     publisher,
		Logger:        zlog.Named("photo"),
		ObjectBucket:  cfg.MinIO.Bucket,
		PublicBaseURL: cfg.MinIO.PublicBaseURL,
	})
	links := presigned.NewService(objectStore, photoService, cfg.MinIO.Bucket, cfg.MinIO.PresignTTL)

	pipeline := ingest.NewPipeline(ingest.Params{
		Ledger: ledger,
		Compressor: imaging.NewPool(cfg.Ingest.CompressionWorkers, imaging.Options{
			MaxEdge:     cfg.Ingest.MaxEdgePixels,
			TargetBytes: cfg.Ingest.TargetBytes,
		}),
		Objects:        photoService,
		Catalog:        photoService,
		Publisher:      publisher,
		Logger:         zlog.Named("ingest"),
		StageTimeout:   cfg.Ingest.StageTimeout,
		PublishTimeout: cfg.Kafka.PublishTimeout,
		MaxFiles:       cfg.Ingest.MaxFilesPerBatch,
	})

	governor := selection.NewGovernor(selection.Params{
		Store:     selection.NewRepository(dbPool),
		Limits:    customerRepo,
		Assets:    photoService,
		Publisher: publisher,
		Logger:    zlog.Named("selection"),
	})

	exporter := archive.NewExporter(photoService, archive.Options{
		BatchSize:    cfg.Archive.BatchSize,
		FetchTimeout: cfg.Archive.FetchTimeout,
		Logger:       zlog.Named("archive"),
	})
	exports := archive.NewJobRegistry(exporter, archive.JobParams{
		Dir:       cfg.Archive.WorkDir,
		TTL:       cfg.Archive.JobTTL,
		Publisher: publisher,
		Logger:    zlog.Named("archive"),
	})
	defer exports.Close()
	go exports.Run(ctx, exportSweepInterval)

	router := server.NewRouter(server.Dependencies{
		Config:      cfg,
		Logger:      zlog,
		DB:          dbPool,
		ObjectStore: minioClient,
		AuthService: authService,
		Customers:   customerService,
		Ledger:      ledger,
		Photos:      photoService,
		Links:       links,
		Pipeline:    pipeline,
		Governor:    governor,
		Exporter:    exporter,
		Exports:     exports,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zlog.Info("studiovault API listening", zap.String("addr", cfg.Server.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	zlog.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		zlog.Error("shutdown tracing", zap.Error(err))
	}
}
