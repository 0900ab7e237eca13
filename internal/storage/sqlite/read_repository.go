package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/meetingdesk/media_gateway/internal/storage"
)

func (r *MeetingRepository) GetMeeting(ctx context.Context, id string) (storage.Meeting, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, id)

	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Meeting{}, fmt.Errorf("meeting %s: %w", id, storage.ErrNotFound)
	}

	return m, err
}

// ListMeetings returns all meetings, newest first.
func (r *MeetingRepository) ListMeetings(ctx context.Context) ([]storage.Meeting, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+meetingColumns+` FROM meetings ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}

	return scanMeetings(rows)
}

// GetUnfinishedMeetings returns meetings whose last known processing state is queued or processing.
func (r *MeetingRepository) GetUnfinishedMeetings(ctx context.Context) ([]storage.Meeting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+meetingColumns+`
		FROM meetings
		WHERE processing_state IN ('queued', 'processing')
		ORDER BY updated_at`)
	if err != nil {
		return nil, err
	}

	return scanMeetings(rows)
}

// GetExpiredMedia returns meetings with a media file uploaded before uploadedBefore.
func (r *MeetingRepository) GetExpiredMedia(ctx context.Context, uploadedBefore time.Time) ([]storage.Meeting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+meetingColumns+`
		FROM meetings
		WHERE file_path != ''
		AND uploaded_at IS NOT NULL
		AND uploaded_at < ?
		ORDER BY uploaded_at`, formatTime(uploadedBefore))
	if err != nil {
		return nil, err
	}

	return scanMeetings(rows)
}
