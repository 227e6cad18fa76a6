package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/abduss/studiovault/internal/archive"
	"github.com/abduss/studiovault/internal/config"
	"github.com/abduss/studiovault/internal/customer"
	"github.com/abduss/studiovault/internal/events"
	"github.com/abduss/studiovault/internal/imaging"
	"github.com/abduss/studiovault/internal/ingest"
	"github.com/abduss/studiovault/internal/logger"
	"github.com/abduss/studiovault/internal/photo"
	"github.com/abduss/studiovault/internal/quota"
	"github.com/abduss/studiovault/internal/selection"
	"github.com/abduss/studiovault/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// services is everything the commands can touch, built once per invocation.
type services struct {
	cfg       config.Config
	log       *zap.Logger
	pool      *pgxpool.Pool
	publisher events.Publisher
	ledger    *quota.Ledger
	customers *customer.Service
	photos    *photo.Service
	governor  *selection.Governor
	pipeline  *ingest.Pipeline
	exporter  *archive.Exporter
}

type commandContext struct {
	envFile *string

	once sync.Once
	svc  *services
	err  error
}

func newCommandContext(envFile *string) *commandContext {
	return &commandContext{envFile: envFile}
}

func (c *commandContext) services(ctx context.Context) (*services, error) {
	c.once.Do(func() {
		c.svc, c.err = c.build(ctx)
	})
	return c.svc, c.err
}

func (c *commandContext) build(ctx context.Context) (*services, error) {
	if c.envFile != nil {
		if path := strings.TrimSpace(*c.envFile); path != "" {
			if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New("warn")
	if err != nil {
		return nil, err
	}

	pool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	minioClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		pool.Close()
		return nil, err
	}

	publisher := events.New(cfg.Kafka)
	customerRepo := customer.NewRepository(pool)
	ledger := quota.NewLedger(quota.NewRepository(pool), cfg.Quota.DefaultLimitBytes, log)
	photos := photo.NewService(photo.Params{
		Repo:          photo.NewRepository(pool),
		Objects:       photo.NewMinIOStore(minioClient),
		Ledger:        ledger,
		Publisher:     publisher,
		Logger:        log,
		ObjectBucket:  cfg.MinIO.Bucket,
		PublicBaseURL: cfg.MinIO.PublicBaseURL,
	})

	return &services{
		cfg:       cfg,
		log:       log,
		pool:      pool,
		publisher: publisher,
		ledger:    ledger,
		customers: customer.NewService(customerRepo),
		photos:    photos,
		governor: selection.NewGovernor(selection.Params{
			Store:     selection.NewRepository(pool),
			Limits:    customerRepo,
			Assets:    photos,
			Publisher: publisher,
			Logger:    log,
		}),
		pipeline: ingest.NewPipeline(ingest.Params{
			Ledger: ledger,
			Compressor: imaging.NewPool(cfg.Ingest.CompressionWorkers, imaging.Options{
				MaxEdge:     cfg.Ingest.MaxEdgePixels,
				TargetBytes: cfg.Ingest.TargetBytes,
			}),
			Objects:        photos,
			Catalog:        photos,
			Publisher:      publisher,
			Logger:         log,
			StageTimeout:   cfg.Ingest.StageTimeout,
			PublishTimeout: cfg.Kafka.PublishTimeout,
			MaxFiles:       cfg.Ingest.MaxFilesPerBatch,
		}),
		exporter: archive.NewExporter(photos, archive.Options{
			BatchSize:    cfg.Archive.BatchSize,
			FetchTimeout: cfg.Archive.FetchTimeout,
			Logger:       log,
		}),
	}, nil
}

func (c *commandContext) close() {
	if c.svc == nil {
		return
	}
	_ = c.svc.publisher.Close()
	c.svc.pool.Close()
	_ = c.svc.log.Sync()
}

func parseID(flag, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s must be a UUID: %w", flag, err)
	}
	return id, nil
}
