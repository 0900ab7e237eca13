package media

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the media file does not exist at the resolved path.
	ErrNotFound = errors.New("media file not found")

	// ErrMultipleRanges is returned by ParseRange for multi-range requests, which
	// are answered with the full representation.
	ErrMultipleRanges = errors.New("multiple ranges are not supported")

	// ErrUnsupportedMediaType is returned by Store.Save for unknown file extensions.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrTooLarge is returned by Store.Save when the upload exceeds the size limit.
	ErrTooLarge = errors.New("media file too large")
)

// InvalidRangeError represents a Range header that is malformed or cannot be
// satisfied for a file of Size bytes.
type InvalidRangeError struct {
	Header string
	Size   int64
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range %q for %d bytes: %s", e.Header, e.Size, e.Reason)
}
