package photo

import "errors"

var (
	// ErrAssetNotFound signals that the asset is not in the customer's catalog.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrSizeMismatch signals that storage persisted a different byte count than sent.
	ErrSizeMismatch = errors.New("stored size mismatch")
)
