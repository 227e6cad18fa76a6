package presigned

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/abduss/studiovault/internal/photo"
	"github.com/google/uuid"
)

// ErrInvalidTTL is returned for non-positive or over-long expiries.
var ErrInvalidTTL = errors.New("invalid ttl")

const maxTTL = 24 * time.Hour

type signer interface {
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, params url.Values) (*url.URL, error)
}

type assetLookup interface {
	Get(ctx context.Context, customerID, assetID uuid.UUID) (photo.Asset, error)
}

// Link is a time-limited direct download URL for one asset.
type Link struct {
	AssetID   uuid.UUID `json:"asset_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service issues presigned download links for catalog assets.
type Service struct {
	signer signer
	assets assetLookup
	bucket string
	ttl    time.Duration
	now    func() time.Time
}

// NewService constructs a link issuer with a default ttl.
func NewService(s signer, assets assetLookup, bucket string, ttl time.Duration) *Service {
	return &Service{
		signer: s,
		assets: assets,
		bucket: bucket,
		ttl:    ttl,
		now:    time.Now,
	}
}

// DefaultTTL is used when the caller does not ask for a specific expiry.
func (s *Service) DefaultTTL() time.Duration {
	return s.ttl
}

// AssetLink signs a GET URL for an asset in the customer's catalog. The
// download is served with the asset's display filename.
func (s *Service) AssetLink(ctx context.Context, customerID, assetID uuid.UUID, ttl time.Duration) (Link, error) {
	if ttl == 0 {
		ttl = s.ttl
	}
	if ttl < 0 || ttl > maxTTL {
		return Link{}, ErrInvalidTTL
	}

	a, err := s.assets.Get(ctx, customerID, assetID)
	if err != nil {
		return Link{}, err
	}

	params := make(url.Values)
	if a.Filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
	}

	u, err := s.signer.PresignedGetObject(ctx, s.bucket, a.ObjectName, ttl, params)
	if err != nil {
		return Link{}, fmt.Errorf("presign asset: %w", err)
	}

	return Link{AssetID: a.ID, URL: u.String(), ExpiresAt: s.now().Add(ttl)}, nil
}
