package photo

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/abduss/studiovault/internal/events"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

type catalogStore interface {
	Create(ctx context.Context, a Asset) (Asset, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Asset, error)
	GetByURLs(ctx context.Context, customerID uuid.UUID, urls []string) ([]Asset, error)
	Get(ctx context.Context, customerID, assetID uuid.UUID) (Asset, error)
	HasAsset(ctx context.Context, customerID uuid.UUID, url string) (bool, error)
	Delete(ctx context.Context, customerID, assetID uuid.UUID) (Asset, error)
}

type objectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type releaser interface {
	Release(ctx context.Context, tenantID uuid.UUID, bytes int64) error
	Hold(ctx context.Context, tenantID uuid.UUID) (func(), error)
}

// Params wires a Service.
type Params struct {
	Repo         catalogStore
	Objects      objectStore
	Ledger       releaser
	Publisher    events.Publisher
	Logger       *zap.Logger
	ObjectBucket string
	// PublicBaseURL prefixes object names to form Asset.URL.
	PublicBaseURL string
}

// Service owns the photo catalog and the objects behind it.
type Service struct {
	repo          catalogStore
	objects       objectStore
	ledger        releaser
	publisher     events.Publisher
	logger        *zap.Logger
	objectBucket  string
	publicBaseURL string
}

// NewService constructs a catalog service.
func NewService(p Params) *Service {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Publisher == nil {
		p.Publisher = events.Nop{}
	}
	return &Service{
		repo:          p.Repo,
		objects:       p.Objects,
		ledger:        p.Ledger,
		publisher:     p.Publisher,
		logger:        p.Logger,
		objectBucket:  p.ObjectBucket,
		publicBaseURL: strings.TrimRight(p.PublicBaseURL, "/"),
	}
}

// ObjectName is the storage path of an asset.
func ObjectName(tenantID, customerID, assetID uuid.UUID) string {
	return path.Join(tenantID.String(), customerID.String(), assetID.String()+".jpg")
}

// Put streams r to storage under objectName, hashing it on the way.
func (s *Service) Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (StoredObject, error) {
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return StoredObject{}, fmt.Errorf("init checksum: %w", err)
	}

	info, err := s.objects.PutObject(ctx, s.objectBucket, objectName, io.TeeReader(r, hasher), size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return StoredObject{}, fmt.Errorf("store object: %w", err)
	}

	stored := info.Size
	if stored <= 0 {
		stored = size
	}
	if stored != size {
		_ = s.Remove(ctx, objectName)
		return StoredObject{}, fmt.Errorf("%w: sent %d, stored %d", ErrSizeMismatch, size, stored)
	}

	return StoredObject{
		ObjectName: objectName,
		URL:        s.publicBaseURL + "/" + objectName,
		Size:       stored,
		Checksum:   hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Remove deletes an object, used to compensate a failed commit.
func (s *Service) Remove(ctx context.Context, objectName string) error {
	if err := s.objects.RemoveObject(ctx, s.objectBucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// Insert appends a committed asset to the catalog.
func (s *Service) Insert(ctx context.Context, a Asset) (Asset, error) {
	a.Filename = sanitizeFilename(a.Filename)
	return s.repo.Create(ctx, a)
}

// List returns the customer's catalog.
func (s *Service) List(ctx context.Context, customerID uuid.UUID) ([]Asset, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

// ByURLs resolves asset references, dropping unknown ones.
func (s *Service) ByURLs(ctx context.Context, customerID uuid.UUID, urls []string) ([]Asset, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	return s.repo.GetByURLs(ctx, customerID, urls)
}

// Get returns one asset.
func (s *Service) Get(ctx context.Context, customerID, assetID uuid.UUID) (Asset, error) {
	return s.repo.Get(ctx, customerID, assetID)
}

// HasAsset reports whether url is in the customer's catalog.
func (s *Service) HasAsset(ctx context.Context, customerID uuid.UUID, url string) (bool, error) {
	return s.repo.HasAsset(ctx, customerID, url)
}

// Open returns the stored bytes of an asset.
func (s *Service) Open(ctx context.Context, a Asset) (io.ReadCloser, error) {
	object, err := s.objects.GetObject(ctx, s.objectBucket, a.ObjectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch object: %w", err)
	}
	return object, nil
}

// Download retrieves metadata and object reader.
func (s *Service) Download(ctx context.Context, customerID, assetID uuid.UUID) (Asset, io.ReadCloser, error) {
	a, err := s.repo.Get(ctx, customerID, assetID)
	if err != nil {
		return Asset{}, nil, err
	}
	object, err := s.Open(ctx, a)
	if err != nil {
		return Asset{}, nil, err
	}
	return a, object, nil
}

// Delete removes the asset from the catalog and storage and gives its bytes
// back to the tenant's quota. The row delete and the release share one ledger
// hold.
func (s *Service) Delete(ctx context.Context, tenantID, customerID, assetID uuid.UUID) error {
	a, err := s.deleteRecord(ctx, tenantID, customerID, assetID)
	if err != nil {
		return err
	}

	if err := s.Remove(ctx, a.ObjectName); err != nil {
		s.logger.Warn("orphaned object after asset delete",
			zap.String("object", a.ObjectName),
			zap.Error(err),
		)
	}

	if err := s.publisher.Publish(ctx, events.AssetDeleted, tenantID, customerID, map[string]any{
		"asset_id":   a.ID,
		"url":        a.URL,
		"size_bytes": a.SizeBytes,
	}); err != nil {
		s.logger.Warn("publish asset deleted", zap.Error(err))
	}
	return nil
}

func (s *Service) deleteRecord(ctx context.Context, tenantID, customerID, assetID uuid.UUID) (Asset, error) {
	unhold, err := s.ledger.Hold(ctx, tenantID)
	if err != nil {
		return Asset{}, err
	}
	defer unhold()

	a, err := s.repo.Delete(ctx, customerID, assetID)
	if err != nil {
		return Asset{}, err
	}
	if err := s.ledger.Release(ctx, tenantID, a.SizeBytes); err != nil {
		return Asset{}, fmt.Errorf("release quota: %w", err)
	}
	return a, nil
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "." || name == "/" {
		return ""
	}
	return name
}
