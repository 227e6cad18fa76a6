package selection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abduss/studiovault/internal/events"
	"github.com/abduss/studiovault/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// store persists selections. Update must serialize concurrent calls for the
// same customer and persist the mutation only when fn returns nil.
type store interface {
	Load(ctx context.Context, customerID uuid.UUID) (Selection, error)
	Update(ctx context.Context, customerID uuid.UUID, fn func(*Selection) error) (Selection, error)
}

type limitsSource interface {
	Limits(ctx context.Context, customerID uuid.UUID) (Limits, error)
}

type assetIndex interface {
	HasAsset(ctx context.Context, customerID uuid.UUID, assetURL string) (bool, error)
}

// Governor enforces category limits and the one-way submission lock.
type Governor struct {
	store     store
	limits    limitsSource
	assets    assetIndex
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[uuid.UUID]*customerLock
}

type customerLock struct {
	mu   sync.Mutex
	refs int
}

// Params groups Governor dependencies.
type Params struct {
	Store     store
	Limits    limitsSource
	Assets    assetIndex
	Publisher events.Publisher
	Logger    *zap.Logger
}

// NewGovernor constructs a Governor.
func NewGovernor(p Params) *Governor {
	g := &Governor{
		store:     p.Store,
		limits:    p.Limits,
		assets:    p.Assets,
		publisher: p.Publisher,
		logger:    p.Logger,
		now:       time.Now,
		locks:     make(map[uuid.UUID]*customerLock),
	}
	if g.publisher == nil {
		g.publisher = events.Nop{}
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

// Get returns the selection with current limits and counts.
func (g *Governor) Get(ctx context.Context, customerID uuid.UUID) (Summary, error) {
	limits, err := g.limits.Limits(ctx, customerID)
	if err != nil {
		return Summary{}, fmt.Errorf("load limits: %w", err)
	}
	sel, err := g.store.Load(ctx, customerID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Selection: sel,
		Limits:    limits,
		Counts:    sel.Counts(),
		Valid:     len(sel.Deviations(limits)) == 0,
	}, nil
}

// SelectedRefs returns the distinct asset refs across all categories.
func (g *Governor) SelectedRefs(ctx context.Context, customerID uuid.UUID) ([]string, error) {
	sel, err := g.store.Load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return sel.AssetRefs(), nil
}

// Toggle flips the membership of (assetRef, category). Limits are re-read on
// every call.
func (g *Governor) Toggle(ctx context.Context, customerID uuid.UUID, assetRef string, category Category) (ToggleResult, error) {
	if _, err := ParseCategory(string(category)); err != nil {
		return ToggleResult{}, err
	}

	unlock := g.lock(customerID)
	defer unlock()

	limits, err := g.limits.Limits(ctx, customerID)
	if err != nil {
		return ToggleResult{}, fmt.Errorf("load limits: %w", err)
	}

	var result ToggleResult
	_, err = g.store.Update(ctx, customerID, func(sel *Selection) error {
		if sel.State == StateOpen && !sel.Has(assetRef, category) {
			ok, err := g.assets.HasAsset(ctx, customerID, assetRef)
			if err != nil {
				return fmt.Errorf("lookup asset: %w", err)
			}
			if !ok {
				return ErrAssetNotInCatalog
			}
		}
		var err error
		result, err = sel.Toggle(assetRef, category, limits)
		return err
	})
	if err != nil {
		return ToggleResult{}, err
	}
	return result, nil
}

// Submit moves the selection from open to submitted. It fires at most once
// per customer; later calls return ErrSelectionSubmitted.
func (g *Governor) Submit(ctx context.Context, tenantID, customerID uuid.UUID) (Selection, error) {
	unlock := g.lock(customerID)
	defer unlock()

	limits, err := g.limits.Limits(ctx, customerID)
	if err != nil {
		return Selection{}, fmt.Errorf("load limits: %w", err)
	}

	sel, err := g.store.Update(ctx, customerID, func(sel *Selection) error {
		return sel.Submit(limits, g.now())
	})
	if err != nil {
		var invalid *InvalidSubmissionError
		switch {
		case errors.As(err, &invalid):
			metrics.SelectionSubmitted("invalid")
		case errors.Is(err, ErrSelectionSubmitted):
			metrics.SelectionSubmitted("duplicate")
		default:
			metrics.SelectionSubmitted("error")
		}
		return Selection{}, err
	}
	metrics.SelectionSubmitted("approved")

	payload := map[string]any{
		"approved_at": sel.ApprovedAt,
		"entries":     sel.Entries,
	}
	if err := g.publisher.Publish(ctx, events.SelectionApproved, tenantID, customerID, payload); err != nil {
		g.logger.Warn("publish selection approval",
			zap.String("customer_id", customerID.String()),
			zap.Error(err),
		)
	}
	return sel, nil
}

// lock serializes mutations per customer inside this process; the store's
// row lock covers other replicas.
func (g *Governor) lock(customerID uuid.UUID) func() {
	g.mu.Lock()
	l, ok := g.locks[customerID]
	if !ok {
		l = &customerLock{}
		g.locks[customerID] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, customerID)
		}
		g.mu.Unlock()
	}
}
