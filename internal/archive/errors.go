package archive

import (
	"errors"
	"fmt"

	"github.com/abduss/studiovault/internal/photo"
)

var (
	// ErrNoAssets is returned when an export is requested for an empty list.
	ErrNoAssets = errors.New("no assets to export")
	// ErrAssetFetch matches every *FetchError.
	ErrAssetFetch = errors.New("asset fetch failure")
	// ErrJobNotFound is returned for unknown or expired export jobs.
	ErrJobNotFound = errors.New("export job not found")
	// ErrJobNotReady is returned when downloading a job that has not completed.
	ErrJobNotReady = errors.New("export job not ready")
	// ErrUnknownScope is returned for an export scope other than all or selection.
	ErrUnknownScope = errors.New("unknown export scope")
)

// FetchError reports one asset omitted from a bundle.
type FetchError struct {
	// Index is the 1-based position in the export list.
	Index int
	Asset photo.Asset
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: asset %d (%s): %v", ErrAssetFetch, e.Index, e.Asset.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrAssetFetch, e.Err}
}
