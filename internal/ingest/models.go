package ingest

import (
	"io"

	"github.com/abduss/studiovault/internal/photo"
	"github.com/google/uuid"
)

// State is the lifecycle position of one file in a batch.
type State string

const (
	StatePending      State = "pending"
	StateCompressing  State = "compressing"
	StateTransferring State = "transferring"
	StateCommitted    State = "committed"
	StateFailed       State = "failed"
	// StateCancelled marks a file removed from the batch while pending.
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateFailed || s == StateCancelled
}

// Progress milestones on the per-file 0-100 scale.
const (
	compressedProgress = 30
	transferCeiling    = 99
	committedProgress  = 100
)

// Target identifies where a batch lands.
type Target struct {
	TenantID   uuid.UUID
	CustomerID uuid.UUID
}

// FileSource is one raw input file. Open may be called more than once when
// the file is retried.
type FileSource struct {
	ID       string
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// FileStatus is the observable state of one file.
type FileStatus struct {
	ID              string       `json:"id"`
	Filename        string       `json:"filename"`
	State           State        `json:"state"`
	Progress        int          `json:"progress"`
	OriginalBytes   int64        `json:"original_bytes"`
	CompressedBytes int64        `json:"compressed_bytes,omitempty"`
	Asset           *photo.Asset `json:"asset,omitempty"`
	ErrorKind       Kind         `json:"error_kind,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// Aggregate is batch progress counted in files, not bytes.
type Aggregate struct {
	Committed int `json:"committed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

// Event is one entry of the progress stream.
type Event struct {
	BatchID   uuid.UUID  `json:"batch_id"`
	File      FileStatus `json:"file"`
	Aggregate Aggregate  `json:"aggregate"`
}

// Summary is the batch outcome shown to the operator.
type Summary struct {
	BatchID        uuid.UUID    `json:"batch_id"`
	Total          int          `json:"total"`
	Committed      int          `json:"committed"`
	Failed         int          `json:"failed"`
	Cancelled      int          `json:"cancelled"`
	CommittedBytes int64        `json:"committed_bytes"`
	Done           bool         `json:"done"`
	Files          []FileStatus `json:"files"`
}
