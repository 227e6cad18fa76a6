package quota

import (
	"time"

	"github.com/google/uuid"
)

// Account tracks bytes consumed by a tenant against its provisioned limit.
type Account struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	UsedBytes  int64     `json:"used_bytes"`
	LimitBytes int64     `json:"limit_bytes"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Usage is the read-only view shown to operators.
type Usage struct {
	UsedBytes      int64   `json:"used_bytes"`
	LimitBytes     int64   `json:"limit_bytes"`
	AvailableBytes int64   `json:"available_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
}

// UsageOf derives the usage view of an account.
func UsageOf(a Account) Usage {
	u := Usage{UsedBytes: a.UsedBytes, LimitBytes: a.LimitBytes}
	if a.LimitBytes > a.UsedBytes {
		u.AvailableBytes = a.LimitBytes - a.UsedBytes
	}
	if a.LimitBytes > 0 {
		u.UsagePercent = float64(a.UsedBytes) * 100 / float64(a.LimitBytes)
	}
	return u
}

// Drift reports the result of a reconciliation.
type Drift struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Before   int64     `json:"before"`
	After    int64     `json:"after"`
}

// Delta is After minus Before.
func (d Drift) Delta() int64 {
	return d.After - d.Before
}
