package media

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Descriptor describes a media file as seen at the start of a request.
type Descriptor struct {
	Path     string
	Size     int64
	MimeType string
}

// Describe stats path and resolves its MIME type. Missing files, directories and
// an empty path all yield ErrNotFound.
func Describe(path string) (Descriptor, error) {
	if path == "" {
		return Descriptor{}, ErrNotFound
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Descriptor{}, fmt.Errorf("%s: %w", path, ErrNotFound)
		}

		return Descriptor{}, fmt.Errorf("failed to stat media file: %w", err)
	}

	if !info.Mode().IsRegular() {
		return Descriptor{}, fmt.Errorf("%s is not a regular file: %w", path, ErrNotFound)
	}

	return Descriptor{
		Path:     path,
		Size:     info.Size(),
		MimeType: ContentTypeFor(path),
	}, nil
}
