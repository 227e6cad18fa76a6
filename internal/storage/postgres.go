package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/abduss/studiovault/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultDBTimeout = 5 * time.Second
	maxPoolConns     = 20
	minPoolConns     = 2
	applicationName  = "studiovault"
)

// NewPostgresPool connects to PostgreSQL using pgx and verifies the
// connection. Ledger commits and selection toggles are short statements, so a
// couple of warm connections are kept around.
func NewPostgresPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if poolCfg.MaxConns < maxPoolConns {
		poolCfg.MaxConns = maxPoolConns
	}
	poolCfg.MinConns = minPoolConns
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultDBTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}
