package imaging

import "errors"

var (
	// ErrUnsupportedFormat means the input is not a raster format we can decode.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrCorruptImage means decoding started but the data is damaged.
	ErrCorruptImage = errors.New("corrupt image data")
)
