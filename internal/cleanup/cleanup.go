package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/meetingdesk/media_gateway/internal/logctx"
	"github.com/meetingdesk/media_gateway/internal/storage"
)

// ExpiredMediaSource lists meetings whose media was uploaded before a cutoff.
type ExpiredMediaSource interface {
	GetExpiredMedia(ctx context.Context, uploadedBefore time.Time) ([]storage.Meeting, error)
}

// FileRemover deletes a stored media file.
type FileRemover interface {
	Remove(path string) error
}

// DeleteExpiredFiles deletes the media files of meetings uploaded more than
// keepDuration before now. Records are kept; files that are already gone are
// skipped. It returns the number of files deleted.
func DeleteExpiredFiles(ctx context.Context, src ExpiredMediaSource, remover FileRemover, keepDuration time.Duration, now time.Time) (int, error) {
	logger := logctx.LoggerFromContext(ctx)

	meetings, err := src.GetExpiredMedia(ctx, now.Add(-keepDuration))
	if err != nil {
		return 0, err
	}

	deleted := 0

	for _, m := range meetings {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		if _, err := os.Stat(m.FilePath); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // already deleted
			}

			logger.ErrorContext(ctx, "failed to stat file", "meeting_id", m.ID, "file", m.FilePath, "err", err)

			return deleted, err
		}

		if err := remover.Remove(m.FilePath); err != nil {
			logger.ErrorContext(ctx, "failed to delete expired file", "meeting_id", m.ID, "file", m.FilePath, "err", err)

			return deleted, err
		}

		deleted++

		logger.InfoContext(ctx, "deleted expired media file", "meeting_id", m.ID, "file", m.FilePath, "uploaded_at", m.UploadedAt)
	}

	return deleted, nil
}

// Run calls DeleteExpiredFiles every interval until ctx is done.
func Run(ctx context.Context, src ExpiredMediaSource, remover FileRemover, interval, keepDuration time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down")

			return
		case <-ticker.C:
			if _, err := DeleteExpiredFiles(ctx, src, remover, keepDuration, time.Now()); err != nil && ctx.Err() == nil {
				logger.ErrorContext(ctx, "failed to delete expired media files", "err", err)
			}
		}
	}
}
