package storage

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/abduss/studiovault/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

const (
	defaultObjectStoreTimeout = 5 * time.Second

	// Interrupted ingestion transfers leave multipart fragments behind.
	abandonedUploadRuleID = "studiovault-abort-incomplete-uploads"
	abandonedUploadDays   = 1
)

// NewMinIOClient builds the client for the asset object store.
func NewMinIOClient(cfg config.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(objectEndpoint(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}

// objectEndpoint strips a URL scheme and falls back to the MinIO API port.
func objectEndpoint(raw string) string {
	endpoint := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	if _, _, err := net.SplitHostPort(endpoint); err != nil {
		return net.JoinHostPort(endpoint, "9000")
	}
	return endpoint
}

// EnsureBucket creates the asset bucket when missing and installs the rule
// that aborts abandoned multipart uploads.
func EnsureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultObjectStoreTimeout)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return fmt.Errorf("create bucket %q: %w", bucket, err)
		}
	}

	if err := client.SetBucketLifecycle(ctx, bucket, uploadLifecycle()); err != nil {
		return fmt.Errorf("set lifecycle on %q: %w", bucket, err)
	}
	return nil
}

func uploadLifecycle() *lifecycle.Configuration {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{{
		ID:     abandonedUploadRuleID,
		Status: "Enabled",
		AbortIncompleteMultipartUpload: lifecycle.AbortIncompleteMultipartUpload{
			DaysAfterInitiation: lifecycle.ExpirationDays(abandonedUploadDays),
		},
	}}
	return cfg
}
