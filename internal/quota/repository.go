package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repositoryTimeout = 5 * time.Second

// Repository keeps quota accounts in PostgreSQL. Every mutation is a single
// statement so concurrent commits for one tenant cannot lose updates.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a quota repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureAccount creates the account when missing and returns it.
func (r *Repository) EnsureAccount(ctx context.Context, tenantID uuid.UUID, limitBytes int64) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	if _, err := r.pool.Exec(ctx, `
INSERT INTO quota_accounts (tenant_id, used_bytes, limit_bytes)
VALUES ($1, 0, $2)
ON CONFLICT (tenant_id) DO NOTHING;`, tenantID, limitBytes); err != nil {
		return Account{}, fmt.Errorf("ensure quota account: %w", err)
	}
	return r.get(ctx, tenantID)
}

// Get returns the account or ErrAccountNotFound.
func (r *Repository) Get(ctx context.Context, tenantID uuid.UUID) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()
	return r.get(ctx, tenantID)
}

// TryAdd increments usage only when the result stays within the limit.
func (r *Repository) TryAdd(ctx context.Context, tenantID uuid.UUID, bytes int64) (Account, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	var acct Account
	err := r.pool.QueryRow(ctx, `
UPDATE quota_accounts
SET used_bytes = used_bytes + $2, updated_at = NOW()
WHERE tenant_id = $1 AND used_bytes + $2 <= limit_bytes
RETURNING tenant_id, used_bytes, limit_bytes, updated_at;`, tenantID, bytes).
		Scan(&acct.TenantID, &acct.UsedBytes, &acct.LimitBytes, &acct.UpdatedAt)
	if err == nil {
		return acct, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Account{}, false, fmt.Errorf("add usage: %w", err)
	}

	acct, err = r.get(ctx, tenantID)
	if err != nil {
		return Account{}, false, err
	}
	return acct, false, nil
}

// Subtract decrements usage, floored at zero.
func (r *Repository) Subtract(ctx context.Context, tenantID uuid.UUID, bytes int64) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	var acct Account
	err := r.pool.QueryRow(ctx, `
UPDATE quota_accounts
SET used_bytes = GREATEST(used_bytes - $2, 0), updated_at = NOW()
WHERE tenant_id = $1
RETURNING tenant_id, used_bytes, limit_bytes, updated_at;`, tenantID, bytes).
		Scan(&acct.TenantID, &acct.UsedBytes, &acct.LimitBytes, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("subtract usage: %w", err)
	}
	return acct, nil
}

// SetLimit replaces the provisioned limit.
func (r *Repository) SetLimit(ctx context.Context, tenantID uuid.UUID, limitBytes int64) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	var acct Account
	err := r.pool.QueryRow(ctx, `
UPDATE quota_accounts
SET limit_bytes = $2, updated_at = NOW()
WHERE tenant_id = $1
RETURNING tenant_id, used_bytes, limit_bytes, updated_at;`, tenantID, limitBytes).
		Scan(&acct.TenantID, &acct.UsedBytes, &acct.LimitBytes, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("set limit: %w", err)
	}
	return acct, nil
}

// Hold takes the tenant's shared usage lock on a dedicated connection.
// Holders run concurrently with each other; Reconcile takes the lock
// exclusively and so never observes a commit without its catalog row.
func (r *Repository) Hold(ctx context.Context, tenantID uuid.UUID) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire usage lock connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock_shared(hashtextextended($1::text, 0));`, tenantID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("take usage lock: %w", err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), repositoryTimeout)
		defer cancel()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock_shared(hashtextextended($1::text, 0));`, tenantID); err != nil {
			// A closed session drops its advisory locks.
			_ = conn.Conn().Close(ctx)
		}
		conn.Release()
	}, nil
}

// Reconcile sets usage to the sum of the tenant's live asset sizes. It waits
// for every Hold on the tenant to end first.
func (r *Repository) Reconcile(ctx context.Context, tenantID uuid.UUID) (Drift, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Drift{}, fmt.Errorf("begin reconcile: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0));`, tenantID); err != nil {
		return Drift{}, fmt.Errorf("take usage lock: %w", err)
	}

	drift := Drift{TenantID: tenantID}
	err = tx.QueryRow(ctx, `
WITH live AS (
    SELECT COALESCE(SUM(size_bytes), 0) AS total FROM assets WHERE tenant_id = $1
), prev AS (
    SELECT used_bytes FROM quota_accounts WHERE tenant_id = $1 FOR UPDATE
)
UPDATE quota_accounts q
SET used_bytes = live.total, updated_at = NOW()
FROM live, prev
WHERE q.tenant_id = $1
RETURNING prev.used_bytes, q.used_bytes;`, tenantID).Scan(&drift.Before, &drift.After)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Drift{}, ErrAccountNotFound
		}
		return Drift{}, fmt.Errorf("reconcile usage: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Drift{}, fmt.Errorf("commit reconcile: %w", err)
	}
	return drift, nil
}

func (r *Repository) get(ctx context.Context, tenantID uuid.UUID) (Account, error) {
	var acct Account
	err := r.pool.QueryRow(ctx, `
SELECT tenant_id, used_bytes, limit_bytes, updated_at
FROM quota_accounts WHERE tenant_id = $1;`, tenantID).
		Scan(&acct.TenantID, &acct.UsedBytes, &acct.LimitBytes, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("get quota account: %w", err)
	}
	return acct, nil
}
