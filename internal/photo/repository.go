package photo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoTimeout = 5 * time.Second

const assetColumns = `id, tenant_id, customer_id, object_name, url, filename, size_bytes, content_type, checksum, width, height, uploaded_at`

// Repository provides access to the photo catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a new catalog repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create appends an asset to the catalog.
func (r *Repository) Create(ctx context.Context, a Asset) (Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
INSERT INTO assets (id, tenant_id, customer_id, object_name, url, filename, size_bytes, content_type, checksum, width, height)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + assetColumns + `;`

	row := r.pool.QueryRow(ctx, query,
		a.ID, a.TenantID, a.CustomerID, a.ObjectName, a.URL, a.Filename,
		a.SizeBytes, a.ContentType, a.Checksum, a.Width, a.Height,
	)
	stored, err := scanAsset(row)
	if err != nil {
		return Asset{}, fmt.Errorf("create asset: %w", err)
	}
	return stored, nil
}

// ListByCustomer returns the catalog in upload order.
func (r *Repository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
SELECT `+assetColumns+`
FROM assets
WHERE customer_id = $1
ORDER BY uploaded_at, id;`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return collectAssets(rows)
}

// GetByURLs returns the customer's assets whose URL is in urls, in catalog order.
func (r *Repository) GetByURLs(ctx context.Context, customerID uuid.UUID, urls []string) ([]Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
SELECT `+assetColumns+`
FROM assets
WHERE customer_id = $1 AND url = ANY($2)
ORDER BY uploaded_at, id;`, customerID, urls)
	if err != nil {
		return nil, fmt.Errorf("list assets by url: %w", err)
	}
	return collectAssets(rows)
}

// Get fetches a single asset scoped to its customer.
func (r *Repository) Get(ctx context.Context, customerID, assetID uuid.UUID) (Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
SELECT `+assetColumns+`
FROM assets
WHERE id = $1 AND customer_id = $2;`, assetID, customerID)
	a, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, ErrAssetNotFound
		}
		return Asset{}, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

// HasAsset reports whether url belongs to the customer's catalog.
func (r *Repository) HasAsset(ctx context.Context, customerID uuid.UUID, url string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM assets WHERE customer_id = $1 AND url = $2);`, customerID, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check asset: %w", err)
	}
	return exists, nil
}

// Delete removes the catalog row and returns it.
func (r *Repository) Delete(ctx context.Context, customerID, assetID uuid.UUID) (Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
DELETE FROM assets
WHERE id = $1 AND customer_id = $2
RETURNING `+assetColumns+`;`, assetID, customerID)
	a, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, ErrAssetNotFound
		}
		return Asset{}, fmt.Errorf("delete asset: %w", err)
	}
	return a, nil
}

func collectAssets(rows pgx.Rows) ([]Asset, error) {
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return assets, nil
}

func scanAsset(row pgx.Row) (Asset, error) {
	var a Asset
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.CustomerID,
		&a.ObjectName,
		&a.URL,
		&a.Filename,
		&a.SizeBytes,
		&a.ContentType,
		&a.Checksum,
		&a.Width,
		&a.Height,
		&a.UploadedAt,
	)
	return a, err
}
