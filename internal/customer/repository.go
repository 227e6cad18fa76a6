package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abduss/studiovault/internal/selection"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repositoryTimeout = 5 * time.Second

// Repository allows access to customer persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a customer repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const customerColumns = `
       c.id,
       c.tenant_id,
       c.display_name,
       c.album_limit,
       c.cover_limit,
       c.poster_limit,
       c.created_at,
       c.updated_at,
       COALESCE(u.total_bytes, 0) AS total_bytes,
       COALESCE(u.asset_count, 0) AS asset_count`

const usageJoin = `
LEFT JOIN (
    SELECT customer_id, SUM(size_bytes) AS total_bytes, COUNT(*) AS asset_count
    FROM assets
    GROUP BY customer_id
) u ON u.customer_id = c.id`

// Create inserts a customer for the tenant.
func (r *Repository) Create(ctx context.Context, tenantID uuid.UUID, displayName string, limits selection.Limits) (Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
INSERT INTO customers (id, tenant_id, display_name, album_limit, cover_limit, poster_limit)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, tenant_id, display_name, album_limit, cover_limit, poster_limit, created_at, updated_at;`

	var c Customer
	err := r.pool.QueryRow(ctx, query, uuid.New(), tenantID, strings.TrimSpace(displayName),
		limits.Album, limits.Cover, limits.Poster).
		Scan(&c.ID, &c.TenantID, &c.DisplayName, &c.Limits.Album, &c.Limits.Cover, &c.Limits.Poster, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

// List returns all customers of the tenant.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID) ([]Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `SELECT` + customerColumns + `
FROM customers c` + usageJoin + `
WHERE c.tenant_id = $1
ORDER BY c.created_at DESC;`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return customers, nil
}

// Get fetches a customer by id regardless of tenant; callers check ownership.
func (r *Repository) Get(ctx context.Context, customerID uuid.UUID) (Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `SELECT` + customerColumns + `
FROM customers c` + usageJoin + `
WHERE c.id = $1;`

	c, err := scanCustomer(r.pool.QueryRow(ctx, query, customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

// Limits returns the current category limits, read fresh on every call.
func (r *Repository) Limits(ctx context.Context, customerID uuid.UUID) (selection.Limits, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	var l selection.Limits
	err := r.pool.QueryRow(ctx, `
SELECT album_limit, cover_limit, poster_limit FROM customers WHERE id = $1;`, customerID).
		Scan(&l.Album, &l.Cover, &l.Poster)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return selection.Limits{}, ErrCustomerNotFound
		}
		return selection.Limits{}, fmt.Errorf("get limits: %w", err)
	}
	return l, nil
}

// UpdateLimits replaces the category limits of a tenant's customer.
func (r *Repository) UpdateLimits(ctx context.Context, tenantID, customerID uuid.UUID, limits selection.Limits) error {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
UPDATE customers
SET album_limit = $3, cover_limit = $4, poster_limit = $5, updated_at = NOW()
WHERE id = $1 AND tenant_id = $2;`, customerID, tenantID, limits.Album, limits.Cover, limits.Poster)
	if err != nil {
		return fmt.Errorf("update limits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.DisplayName,
		&c.Limits.Album,
		&c.Limits.Cover,
		&c.Limits.Poster,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.Usage.TotalBytes,
		&c.Usage.AssetCount,
	)
	return c, err
}
