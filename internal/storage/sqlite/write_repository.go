package sqlite

import (
	"context"

	"github.com/google/uuid"
	"github.com/meetingdesk/media_gateway/internal/storage"
)

func (r *MeetingRepository) CreateMeeting(ctx context.Context, title string) (storage.Meeting, error) {
	now := r.now().UTC()

	m := storage.Meeting{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO meetings (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		m.ID, m.Title, formatTime(now), formatTime(now),
	)
	if err != nil {
		return storage.Meeting{}, err
	}

	// round-trip precision matches what a later read returns
	m.CreatedAt, _ = parseTime(formatTime(now))
	m.UpdatedAt = m.CreatedAt

	return m, nil
}

func (r *MeetingRepository) DeleteMeeting(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM meetings WHERE id = ?`, id)
	if err != nil {
		return err
	}

	return expectOneRow(res, id)
}

// AttachFile records the uploaded media file and resets the processing state, so
// a replaced file can be submitted again.
func (r *MeetingRepository) AttachFile(ctx context.Context, id, filePath string, size int64, mimeType string) error {
	now := formatTime(r.now())

	res, err := r.db.ExecContext(ctx,
		`UPDATE meetings SET
			file_path = ?,
			file_size = ?,
			mime_type = ?,
			uploaded_at = ?,
			processing_state = '',
			stage = '',
			progress = 0,
			error = '',
			updated_at = ?
		WHERE id = ?`,
		filePath, size, mimeType, now, now, id,
	)
	if err != nil {
		return err
	}

	return expectOneRow(res, id)
}

func (r *MeetingRepository) UpdateProcessing(ctx context.Context, id string, update storage.ProcessingUpdate) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE meetings SET processing_state = ?, stage = ?, progress = ?, error = ?, updated_at = ? WHERE id = ?`,
		update.State, update.Stage, update.Progress, update.Error, formatTime(r.now()), id,
	)
	if err != nil {
		return err
	}

	return expectOneRow(res, id)
}

func (r *MeetingRepository) RecordProcessingError(ctx context.Context, id, message string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE meetings SET error = ?, updated_at = ? WHERE id = ?`,
		message, formatTime(r.now()), id,
	)
	if err != nil {
		return err
	}

	return expectOneRow(res, id)
}
