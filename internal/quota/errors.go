package quota

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Stage names the ledger operation that rejected bytes.
type Stage string

const (
	StagePreflight Stage = "preflight"
	StageCommit    Stage = "commit"
)

var (
	// ErrQuotaExceeded matches every *ExceededError.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrInvalidAmount signals a negative byte amount.
	ErrInvalidAmount = errors.New("invalid byte amount")
	// ErrAccountNotFound signals a tenant without a quota account.
	ErrAccountNotFound = errors.New("quota account not found")
)

// ExceededError carries the numbers behind a rejection.
type ExceededError struct {
	TenantID  uuid.UUID
	Stage     Stage
	Used      int64
	Limit     int64
	Requested int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s at %s: used %d + requested %d > limit %d",
		ErrQuotaExceeded, e.Stage, e.Used, e.Requested, e.Limit)
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
