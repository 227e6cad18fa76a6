package auth

import (
	"time"

	"github.com/google/uuid"
)

// Role distinguishes studio operators from their customers.
type Role string

const (
	RoleStudio   Role = "studio"
	RoleCustomer Role = "customer"
)

// Principal is the validated identity behind a request. CustomerID is set
// only for RoleCustomer.
type Principal struct {
	Subject    string
	TenantID   uuid.UUID
	Role       Role
	CustomerID uuid.UUID
	ExpiresAt  time.Time
}

// IsStudio reports whether the principal acts for the studio.
func (p Principal) IsStudio() bool {
	return p.Role == RoleStudio
}

// CanAccessCustomer reports whether the principal may act on the customer
// belonging to tenantID.
func (p Principal) CanAccessCustomer(tenantID, customerID uuid.UUID) bool {
	if p.TenantID != tenantID {
		return false
	}
	if p.IsStudio() {
		return true
	}
	return p.Role == RoleCustomer && p.CustomerID == customerID
}
