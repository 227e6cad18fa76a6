package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBatch is returned when a batch has no files.
	ErrEmptyBatch = errors.New("batch has no files")
	// ErrTooManyFiles is returned when a batch exceeds the configured size.
	ErrTooManyFiles = errors.New("too many files in batch")
	// ErrBatchNotFound is returned for unknown or finished batches.
	ErrBatchNotFound = errors.New("batch not found")
	// ErrFileNotFound is returned when a file id is not part of the batch.
	ErrFileNotFound = errors.New("file not found in batch")
	// ErrFileNotPending is returned when cancelling a file that already started.
	ErrFileNotPending = errors.New("file is no longer pending")

	ErrCompression = errors.New("compression failure")
	ErrTransfer    = errors.New("transfer failure")
	ErrCatalog     = errors.New("catalog failure")
	ErrQuota       = errors.New("quota commit failure")
)

// Kind classifies a per-file failure.
type Kind string

const (
	KindCompression Kind = "compression"
	KindTransfer    Kind = "transfer"
	KindQuota       Kind = "quota"
	KindCatalog     Kind = "catalog"
)

func (k Kind) sentinel() error {
	switch k {
	case KindCompression:
		return ErrCompression
	case KindTransfer:
		return ErrTransfer
	case KindQuota:
		return ErrQuota
	default:
		return ErrCatalog
	}
}

// FileError records why one file failed. It matches both the kind sentinel
// and the underlying cause.
type FileError struct {
	FileID string
	Kind   Kind
	Err    error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s: %s: %v", e.FileID, e.Kind.sentinel(), e.Err)
}

func (e *FileError) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}
