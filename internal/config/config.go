package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config aggregates runtime configuration for the studio media API.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	MinIO    MinIOConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
	Kafka    KafkaConfig
	Tracing  TracingConfig
	Quota    QuotaConfig
	Ingest   IngestConfig
	Archive  ArchiveConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string        `env:"STUDIOVAULT_API_HOST" envDefault:"0.0.0.0"`
	Port         int           `env:"STUDIOVAULT_API_PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"STUDIOVAULT_API_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"STUDIOVAULT_API_WRITE_TIMEOUT" envDefault:"10m"`
	IdleTimeout  time.Duration `env:"STUDIOVAULT_API_IDLE_TIMEOUT" envDefault:"60s"`
	// MultipartMemBytes bounds the in-memory part of parsed upload forms.
	MultipartMemBytes int64 `env:"STUDIOVAULT_MULTIPART_MEM_BYTES" envDefault:"33554432"`
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"studiovault_app"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"change-me"`
	Database string `env:"POSTGRES_DB" envDefault:"studiovault"`
	SSLMode  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, strings.ToLower(p.SSLMode))
}

// MinIOConfig carries MinIO connection and bucket information.
type MinIOConfig struct {
	Endpoint        string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
	AccessKeyID     string `env:"MINIO_ROOT_USER" envDefault:"studiovault"`
	SecretAccessKey string `env:"MINIO_ROOT_PASSWORD" envDefault:"change-me-strong-password"`
	Bucket          string `env:"MINIO_BUCKET" envDefault:"studiovault"`
	UseSSL          bool   `env:"MINIO_USE_SSL" envDefault:"false"`
	Region          string `env:"MINIO_REGION" envDefault:""`
	// PublicBaseURL prefixes object names to form the asset retrieval URL.
	PublicBaseURL string        `env:"MINIO_PUBLIC_BASE_URL" envDefault:"http://localhost:9000/studiovault"`
	PresignTTL    time.Duration `env:"MINIO_PRESIGN_TTL" envDefault:"15m"`
}

// AuthConfig groups token validation settings. Tokens are issued by the
// studio platform; this service only verifies them.
type AuthConfig struct {
	AccessTokenSecret string `env:"STUDIOVAULT_JWT_SECRET" envDefault:"change-me-to-a-32-byte-secret"`
	Issuer            string `env:"STUDIOVAULT_JWT_ISSUER" envDefault:"studio-platform"`
	Audience          string `env:"STUDIOVAULT_JWT_AUDIENCE" envDefault:"studiovault-api"`
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string `env:"STUDIOVAULT_METRICS_PATH" envDefault:"/metrics"`
}

// KafkaConfig configures domain event publishing. Publishing is disabled
// when no brokers are configured.
type KafkaConfig struct {
	Brokers      []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Topic        string        `env:"KAFKA_MEDIA_TOPIC" envDefault:"studiovault.media"`
	Retries      int           `env:"KAFKA_RETRIES" envDefault:"3"`
	BatchSize    int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	BatchTimeout time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"1s"`
	Compression  string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	// PublishTimeout bounds one publish from the ingest loop.
	PublishTimeout time.Duration `env:"KAFKA_PUBLISH_TIMEOUT" envDefault:"5s"`
}

// TracingConfig configures the OTLP exporter. Empty endpoint disables tracing.
type TracingConfig struct {
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"studiovault-api"`
}

// QuotaConfig holds ledger defaults.
type QuotaConfig struct {
	DefaultLimitBytes int64 `env:"QUOTA_DEFAULT_LIMIT_BYTES" envDefault:"5368709120"`
}

// IngestConfig holds the compression policy and pipeline tuning.
type IngestConfig struct {
	MaxEdgePixels      int           `env:"INGEST_MAX_EDGE_PX" envDefault:"1000"`
	TargetBytes        int64         `env:"INGEST_TARGET_BYTES" envDefault:"200000"`
	CompressionWorkers int           `env:"INGEST_COMPRESSION_WORKERS" envDefault:"2"`
	StageTimeout       time.Duration `env:"INGEST_STAGE_TIMEOUT" envDefault:"2m"`
	MaxFilesPerBatch   int           `env:"INGEST_MAX_FILES_PER_BATCH" envDefault:"200"`
}

// ArchiveConfig holds the exporter tuning.
type ArchiveConfig struct {
	BatchSize    int           `env:"ARCHIVE_BATCH_SIZE" envDefault:"5"`
	FetchTimeout time.Duration `env:"ARCHIVE_FETCH_TIMEOUT" envDefault:"30s"`
	JobTTL       time.Duration `env:"ARCHIVE_JOB_TTL" envDefault:"30m"`
	WorkDir      string        `env:"ARCHIVE_WORK_DIR" envDefault:""`
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.Archive.BatchSize <= 0 {
		cfg.Archive.BatchSize = 5
	}
	if cfg.Ingest.CompressionWorkers <= 0 {
		cfg.Ingest.CompressionWorkers = 1
	}
	if cfg.Ingest.MaxEdgePixels <= 0 {
		return Config{}, fmt.Errorf("INGEST_MAX_EDGE_PX must be positive")
	}
	return cfg, nil
}
