package customer

import (
	"context"
	"fmt"
	"strings"

	"github.com/abduss/studiovault/internal/selection"
	"github.com/google/uuid"
)

type repository interface {
	Create(ctx context.Context, tenantID uuid.UUID, displayName string, limits selection.Limits) (Customer, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]Customer, error)
	Get(ctx context.Context, customerID uuid.UUID) (Customer, error)
	UpdateLimits(ctx context.Context, tenantID, customerID uuid.UUID, limits selection.Limits) error
}

// Service orchestrates customer operations for studio operators.
type Service struct {
	repo repository
}

// NewService constructs a customer service.
func NewService(repo repository) *Service {
	return &Service{repo: repo}
}

// Create registers a customer under the tenant.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, displayName string, limits selection.Limits) (Customer, error) {
	if strings.TrimSpace(displayName) == "" {
		return Customer{}, fmt.Errorf("display name required")
	}
	if err := limits.Validate(); err != nil {
		return Customer{}, err
	}
	return s.repo.Create(ctx, tenantID, displayName, limits)
}

// List returns the tenant's customers.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]Customer, error) {
	return s.repo.List(ctx, tenantID)
}

// Get returns a customer owned by the tenant.
func (s *Service) Get(ctx context.Context, tenantID, customerID uuid.UUID) (Customer, error) {
	c, err := s.repo.Get(ctx, customerID)
	if err != nil {
		return Customer{}, err
	}
	if c.TenantID != tenantID {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

// SetLimits changes the category limits. Existing entries are left untouched.
func (s *Service) SetLimits(ctx context.Context, tenantID, customerID uuid.UUID, limits selection.Limits) error {
	if err := limits.Validate(); err != nil {
		return err
	}
	return s.repo.UpdateLimits(ctx, tenantID, customerID, limits)
}
