package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repositoryTimeout = 5 * time.Second

// Repository persists selections in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a selection repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Load reads the selection without locking. A customer without a row has an
// empty open selection.
func (r *Repository) Load(ctx context.Context, customerID uuid.UUID) (Selection, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	sel := Selection{CustomerID: customerID, State: StateOpen}
	err := r.pool.QueryRow(ctx, `
SELECT state, approved_at, updated_at FROM selections WHERE customer_id = $1;`, customerID).
		Scan(&sel.State, &sel.ApprovedAt, &sel.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sel, nil
		}
		return Selection{}, fmt.Errorf("load selection: %w", err)
	}

	entries, err := loadEntries(ctx, r.pool, customerID)
	if err != nil {
		return Selection{}, err
	}
	sel.Entries = entries
	return sel, nil
}

// Update locks the selection row, applies fn and writes the difference.
func (r *Repository) Update(ctx context.Context, customerID uuid.UUID, fn func(*Selection) error) (Selection, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Selection{}, fmt.Errorf("begin selection tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `
INSERT INTO selections (customer_id, state) VALUES ($1, 'open')
ON CONFLICT (customer_id) DO NOTHING;`, customerID); err != nil {
		return Selection{}, fmt.Errorf("ensure selection row: %w", err)
	}

	sel := Selection{CustomerID: customerID}
	if err := tx.QueryRow(ctx, `
SELECT state, approved_at, updated_at FROM selections WHERE customer_id = $1 FOR UPDATE;`, customerID).
		Scan(&sel.State, &sel.ApprovedAt, &sel.UpdatedAt); err != nil {
		return Selection{}, fmt.Errorf("lock selection: %w", err)
	}

	sel.Entries, err = loadEntries(ctx, tx, customerID)
	if err != nil {
		return Selection{}, err
	}

	before := sel.clone()
	if err := fn(&sel); err != nil {
		return before, err
	}

	added, removed := diffEntries(before.Entries, sel.Entries)
	for _, e := range removed {
		if _, err := tx.Exec(ctx, `
DELETE FROM selection_entries WHERE customer_id = $1 AND category = $2 AND asset_url = $3;`,
			customerID, string(e.Category), e.AssetRef); err != nil {
			return Selection{}, fmt.Errorf("delete selection entry: %w", err)
		}
	}
	for _, e := range added {
		if _, err := tx.Exec(ctx, `
INSERT INTO selection_entries (customer_id, category, asset_url) VALUES ($1, $2, $3);`,
			customerID, string(e.Category), e.AssetRef); err != nil {
			return Selection{}, fmt.Errorf("insert selection entry: %w", err)
		}
	}

	switch {
	case before.State != sel.State:
		snapshot, err := json.Marshal(sel.Entries)
		if err != nil {
			return Selection{}, fmt.Errorf("marshal approved entries: %w", err)
		}
		if err := tx.QueryRow(ctx, `
UPDATE selections
SET state = $2, approved_at = $3, approved_entries = $4, updated_at = NOW()
WHERE customer_id = $1
RETURNING updated_at;`, customerID, string(sel.State), sel.ApprovedAt, snapshot).Scan(&sel.UpdatedAt); err != nil {
			return Selection{}, fmt.Errorf("submit selection: %w", err)
		}
	case len(added) > 0 || len(removed) > 0:
		if err := tx.QueryRow(ctx, `
UPDATE selections SET updated_at = NOW() WHERE customer_id = $1 RETURNING updated_at;`, customerID).
			Scan(&sel.UpdatedAt); err != nil {
			return Selection{}, fmt.Errorf("touch selection: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Selection{}, fmt.Errorf("commit selection: %w", err)
	}
	return sel, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadEntries(ctx context.Context, q querier, customerID uuid.UUID) ([]Entry, error) {
	rows, err := q.Query(ctx, `
SELECT category, asset_url FROM selection_entries
WHERE customer_id = $1
ORDER BY created_at, asset_url;`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list selection entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Category, &e.AssetRef); err != nil {
			return nil, fmt.Errorf("scan selection entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate selection entries: %w", err)
	}
	return entries, nil
}

func diffEntries(before, after []Entry) (added, removed []Entry) {
	in := func(list []Entry, e Entry) bool {
		for _, x := range list {
			if x == e {
				return true
			}
		}
		return false
	}
	for _, e := range after {
		if !in(before, e) {
			added = append(added, e)
		}
	}
	for _, e := range before {
		if !in(after, e) {
			removed = append(removed, e)
		}
	}
	return added, removed
}
