package photo

import (
	"time"

	"github.com/google/uuid"
)

// Asset is one stored photograph belonging to a customer.
type Asset struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	ObjectName  string    `json:"-"`
	URL         string    `json:"url"`
	Filename    string    `json:"filename"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentType string    `json:"content_type"`
	Checksum    string    `json:"checksum"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// StoredObject describes bytes persisted in object storage.
type StoredObject struct {
	ObjectName string
	URL        string
	Size       int64
	Checksum   string
}
