package media

import (
	"path/filepath"
	"sort"
	"strings"
)

// DefaultContentType is served for files with an unknown extension.
const DefaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	".mp4": "video/mp4",
	".avi": "video/x-msvideo",
	".mov": "video/quicktime",
	".mp3": "audio/mpeg",
	".wav": "audio/wav",
	".m4a": "audio/mp4",
}

// ContentTypeFor returns the MIME type of path based on its extension, ignoring case.
func ContentTypeFor(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}

	return DefaultContentType
}

// IsSupported reports whether path has one of the known media extensions.
func IsSupported(path string) bool {
	_, ok := contentTypes[strings.ToLower(filepath.Ext(path))]

	return ok
}

// Extensions lists the known media extensions, sorted.
func Extensions() []string {
	exts := make([]string, 0, len(contentTypes))
	for ext := range contentTypes {
		exts = append(exts, ext)
	}

	sort.Strings(exts)

	return exts
}
