package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/abduss/studiovault/internal/metrics"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// store is the atomic persistence contract. TryAdd must check and increment
// in one step and report ok=false with the current account when the limit
// would be exceeded.
type store interface {
	EnsureAccount(ctx context.Context, tenantID uuid.UUID, limitBytes int64) (Account, error)
	Get(ctx context.Context, tenantID uuid.UUID) (Account, error)
	TryAdd(ctx context.Context, tenantID uuid.UUID, bytes int64) (Account, bool, error)
	Subtract(ctx context.Context, tenantID uuid.UUID, bytes int64) (Account, error)
	SetLimit(ctx context.Context, tenantID uuid.UUID, limitBytes int64) (Account, error)
	Reconcile(ctx context.Context, tenantID uuid.UUID) (Drift, error)
	// Hold blocks Reconcile for the tenant until the returned func runs.
	Hold(ctx context.Context, tenantID uuid.UUID) (func(), error)
}

// Ledger is the admission-control gate for new bytes. All mutation of
// usedBytes goes through Commit and Release.
type Ledger struct {
	store        store
	defaultLimit int64
	logger       *zap.Logger
}

// NewLedger constructs a Ledger. Tenants without an account are provisioned
// with defaultLimit on first use.
func NewLedger(s store, defaultLimit int64, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: s, defaultLimit: defaultLimit, logger: logger}
}

// Preflight is a non-binding check that estimatedBytes would currently fit.
func (l *Ledger) Preflight(ctx context.Context, tenantID uuid.UUID, estimatedBytes int64) error {
	if estimatedBytes < 0 {
		return ErrInvalidAmount
	}
	acct, err := l.account(ctx, tenantID)
	if err != nil {
		return err
	}
	if acct.UsedBytes+estimatedBytes > acct.LimitBytes {
		metrics.QuotaRejected(string(StagePreflight))
		l.logger.Info("quota preflight rejected",
			zap.String("tenant_id", tenantID.String()),
			zap.String("used", humanize.Bytes(uint64(acct.UsedBytes))),
			zap.String("requested", humanize.Bytes(uint64(estimatedBytes))),
			zap.String("limit", humanize.Bytes(uint64(acct.LimitBytes))),
		)
		return &ExceededError{
			TenantID:  tenantID,
			Stage:     StagePreflight,
			Used:      acct.UsedBytes,
			Limit:     acct.LimitBytes,
			Requested: estimatedBytes,
		}
	}
	return nil
}

// Commit atomically adds actualBytes, refusing when the limit would be exceeded.
func (l *Ledger) Commit(ctx context.Context, tenantID uuid.UUID, actualBytes int64) (Account, error) {
	if actualBytes < 0 {
		return Account{}, ErrInvalidAmount
	}
	if _, err := l.account(ctx, tenantID); err != nil {
		return Account{}, err
	}

	acct, ok, err := l.store.TryAdd(ctx, tenantID, actualBytes)
	if err != nil {
		return Account{}, fmt.Errorf("commit usage: %w", err)
	}
	if !ok {
		metrics.QuotaRejected(string(StageCommit))
		return acct, &ExceededError{
			TenantID:  tenantID,
			Stage:     StageCommit,
			Used:      acct.UsedBytes,
			Limit:     acct.LimitBytes,
			Requested: actualBytes,
		}
	}
	return acct, nil
}

// Release gives bytes back after an asset is deleted. Usage is floored at zero.
func (l *Ledger) Release(ctx context.Context, tenantID uuid.UUID, bytes int64) error {
	if bytes < 0 {
		return ErrInvalidAmount
	}
	if bytes == 0 {
		return nil
	}
	if _, err := l.store.Subtract(ctx, tenantID, bytes); err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	return nil
}

// Usage returns the tenant's current consumption.
func (l *Ledger) Usage(ctx context.Context, tenantID uuid.UUID) (Usage, error) {
	acct, err := l.account(ctx, tenantID)
	if err != nil {
		return Usage{}, err
	}
	return UsageOf(acct), nil
}

// SetLimit changes the provisioned limit. Existing usage above the new limit
// is kept; only future commits are refused.
func (l *Ledger) SetLimit(ctx context.Context, tenantID uuid.UUID, limitBytes int64) (Account, error) {
	if limitBytes < 0 {
		return Account{}, ErrInvalidAmount
	}
	if _, err := l.account(ctx, tenantID); err != nil {
		return Account{}, err
	}
	return l.store.SetLimit(ctx, tenantID, limitBytes)
}

// Hold is taken around any change that touches usedBytes and the asset
// catalog in two steps (commit then insert, delete then release), so that
// Reconcile never sees one step without the other. The returned func must be
// called exactly once.
func (l *Ledger) Hold(ctx context.Context, tenantID uuid.UUID) (func(), error) {
	unhold, err := l.store.Hold(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("hold quota account: %w", err)
	}
	return unhold, nil
}

// Reconcile resets usedBytes to the sum of live asset sizes.
func (l *Ledger) Reconcile(ctx context.Context, tenantID uuid.UUID) (Drift, error) {
	if _, err := l.account(ctx, tenantID); err != nil {
		return Drift{}, err
	}
	drift, err := l.store.Reconcile(ctx, tenantID)
	if err != nil {
		return Drift{}, fmt.Errorf("reconcile usage: %w", err)
	}
	if drift.Delta() != 0 {
		l.logger.Warn("quota drift corrected",
			zap.String("tenant_id", tenantID.String()),
			zap.Int64("before", drift.Before),
			zap.Int64("after", drift.After),
		)
	}
	return drift, nil
}

func (l *Ledger) account(ctx context.Context, tenantID uuid.UUID) (Account, error) {
	acct, err := l.store.Get(ctx, tenantID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return Account{}, fmt.Errorf("load quota account: %w", err)
	}
	acct, err = l.store.EnsureAccount(ctx, tenantID, l.defaultLimit)
	if err != nil {
		return Account{}, fmt.Errorf("provision quota account: %w", err)
	}
	return acct, nil
}
