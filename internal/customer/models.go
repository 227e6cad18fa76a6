package customer

import (
	"time"

	"github.com/abduss/studiovault/internal/selection"
	"github.com/google/uuid"
)

// Customer is a studio client whose photos are managed by the pipeline.
type Customer struct {
	ID          uuid.UUID        `json:"id"`
	TenantID    uuid.UUID        `json:"tenant_id"`
	DisplayName string           `json:"display_name"`
	Limits      selection.Limits `json:"limits"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Usage       UsageStats       `json:"usage"`
}

// UsageStats reflects aggregate asset statistics for a customer.
type UsageStats struct {
	TotalBytes int64 `json:"total_bytes"`
	AssetCount int64 `json:"asset_count"`
}
