package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/meetingdesk/media_gateway/internal/logctx"
	"github.com/meetingdesk/media_gateway/internal/media/progress"
)

const (
	dirPerm          = 0755
	progressInterval = int64(100 * 1024 * 1024) // 100MB
)

// Store keeps uploaded media under <dir>/<meeting id>/<uuid><ext>.
type Store struct {
	dir     string
	maxSize int64
}

// NewStore creates a store rooted at dir. maxSize <= 0 disables the size limit.
func NewStore(dir string, maxSize int64) *Store {
	return &Store{dir: dir, maxSize: maxSize}
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// Save streams r into a new file for meetingID. filename is only used for its
// extension, which must be a known media extension. size is the expected length
// or 0 when unknown; it only affects progress logging.
func (s *Store) Save(ctx context.Context, meetingID, filename string, size int64, r io.Reader) (Descriptor, error) {
	logger := logctx.LoggerFromContext(ctx).With("meeting_id", meetingID)

	if !IsSupported(filename) {
		return Descriptor{}, fmt.Errorf("%q: %w", filepath.Ext(filename), ErrUnsupportedMediaType)
	}

	if s.maxSize > 0 && size > s.maxSize {
		return Descriptor{}, fmt.Errorf("%s exceeds %s: %w", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(s.maxSize)), ErrTooLarge)
	}

	dir, err := s.meetingDir(meetingID)
	if err != nil {
		return Descriptor{}, err
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		logger.ErrorContext(ctx, "failed to create media directory", "dir", dir, "err", err)

		return Descriptor{}, fmt.Errorf("failed to create media directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to create temporary file: %w", err)
	}

	tmpPath := tmp.Name()
	committed := false

	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	logger.InfoContext(ctx, "receiving media file", "file_name", filepath.Base(filename), "file_size", humanize.Bytes(uint64(size)))

	pr := progress.NewReader(r, size, progressInterval, func(read, total int64) {
		if total > 0 {
			logger.DebugContext(ctx, "upload progress",
				"received", humanize.Bytes(uint64(read)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(read)*100/float64(total), 2))

			return
		}

		logger.DebugContext(ctx, "upload progress", "received", humanize.Bytes(uint64(read)))
	})

	src := io.Reader(pr)
	if s.maxSize > 0 {
		src = io.LimitReader(pr, s.maxSize+1)
	}

	written, err := io.Copy(tmp, readerWithContext(ctx, src))
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to write media file: %w", err)
	}

	if s.maxSize > 0 && written > s.maxSize {
		return Descriptor{}, fmt.Errorf("upload exceeds %s: %w", humanize.IBytes(uint64(s.maxSize)), ErrTooLarge)
	}

	if err := tmp.Close(); err != nil {
		return Descriptor{}, fmt.Errorf("failed to close media file: %w", err)
	}

	finalPath := filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(filename)))
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return Descriptor{}, fmt.Errorf("failed to move media file into place: %w", err)
	}

	committed = true

	logger.InfoContext(ctx, "stored media file", "path", finalPath, "file_size", humanize.Bytes(uint64(written)))

	return Describe(finalPath)
}

// Remove deletes the file at path. A missing file is not an error.
func (s *Store) Remove(path string) error {
	if path == "" {
		return nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove media file: %w", err)
	}

	// drop the meeting directory once it is empty; a non-empty one stays
	if dir := filepath.Dir(path); filepath.Clean(dir) != filepath.Clean(s.dir) {
		_ = os.Remove(dir)
	}

	return nil
}

// RemoveMeeting deletes every file stored for meetingID.
func (s *Store) RemoveMeeting(meetingID string) error {
	dir, err := s.meetingDir(meetingID)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove media directory: %w", err)
	}

	return nil
}

func (s *Store) meetingDir(meetingID string) (string, error) {
	if meetingID == "" || meetingID == "." || meetingID == ".." || strings.ContainsAny(meetingID, `/\`) {
		return "", fmt.Errorf("invalid meeting id %q", meetingID)
	}

	return filepath.Join(s.dir, meetingID), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
