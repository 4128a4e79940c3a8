package format

import "errors"

var (
	// ErrInvalidHeader indicates a truncated or malformed file header.
	ErrInvalidHeader = errors.New("invalid file header")
	// ErrMagicMismatch indicates the file is not a tabular-index array.
	ErrMagicMismatch = errors.New("magic number mismatch")
	// ErrVersionMismatch indicates an unsupported format version.
	ErrVersionMismatch = errors.New("unsupported format version")
	// ErrBoundsCheck indicates an out-of-bounds element access.
	ErrBoundsCheck = errors.New("index out of bounds")
)
