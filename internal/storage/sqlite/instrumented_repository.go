package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/meetingdesk/media_gateway/internal/storage"
	"github.com/meetingdesk/media_gateway/internal/telemetry"
)

// InstrumentedMeetingRepository wraps MeetingRepository with telemetry.
type InstrumentedMeetingRepository struct {
	repo      *MeetingRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedMeetingRepository creates a new instrumented meeting repository.
func NewInstrumentedMeetingRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedMeetingRepository {
	return &InstrumentedMeetingRepository{
		repo:      NewMeetingRepository(dbConn),
		telemetry: tel,
	}
}

// GetMeeting retrieves a meeting with telemetry.
func (r *InstrumentedMeetingRepository) GetMeeting(ctx context.Context, id string) (storage.Meeting, error) {
	var result storage.Meeting

	err := r.telemetry.InstrumentDBOperation(ctx, "get_meeting", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetMeeting(ctx, id)

		return err
	})

	return result, err
}

// ListMeetings retrieves all meetings with telemetry.
func (r *InstrumentedMeetingRepository) ListMeetings(ctx context.Context) ([]storage.Meeting, error) {
	var result []storage.Meeting

	err := r.telemetry.InstrumentDBOperation(ctx, "list_meetings", func(ctx context.Context) error {
		var err error
		result, err = r.repo.ListMeetings(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetUnfinishedMeetings retrieves queued and processing meetings with telemetry.
func (r *InstrumentedMeetingRepository) GetUnfinishedMeetings(ctx context.Context) ([]storage.Meeting, error) {
	var result []storage.Meeting

	err := r.telemetry.InstrumentDBOperation(ctx, "get_unfinished_meetings", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetUnfinishedMeetings(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetExpiredMedia retrieves meetings with expired media with telemetry.
func (r *InstrumentedMeetingRepository) GetExpiredMedia(ctx context.Context, uploadedBefore time.Time) ([]storage.Meeting, error) {
	var result []storage.Meeting

	err := r.telemetry.InstrumentDBOperation(ctx, "get_expired_media", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetExpiredMedia(ctx, uploadedBefore)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// CreateMeeting creates a meeting with telemetry.
func (r *InstrumentedMeetingRepository) CreateMeeting(ctx context.Context, title string) (storage.Meeting, error) {
	var result storage.Meeting

	err := r.telemetry.InstrumentDBOperation(ctx, "create_meeting", func(ctx context.Context) error {
		var err error
		result, err = r.repo.CreateMeeting(ctx, title)

		return err
	})

	return result, err
}

// DeleteMeeting deletes a meeting with telemetry.
func (r *InstrumentedMeetingRepository) DeleteMeeting(ctx context.Context, id string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "delete_meeting", func(ctx context.Context) error {
		return r.repo.DeleteMeeting(ctx, id)
	})
}

// AttachFile records an uploaded file with telemetry.
func (r *InstrumentedMeetingRepository) AttachFile(ctx context.Context, id, filePath string, size int64, mimeType string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "attach_file", func(ctx context.Context) error {
		return r.repo.AttachFile(ctx, id, filePath, size, mimeType)
	})
}

// UpdateProcessing persists a processing snapshot with telemetry.
func (r *InstrumentedMeetingRepository) UpdateProcessing(ctx context.Context, id string, update storage.ProcessingUpdate) error {
	return r.telemetry.InstrumentDBOperation(ctx, "update_processing", func(ctx context.Context) error {
		return r.repo.UpdateProcessing(ctx, id, update)
	})
}

// RecordProcessingError persists a polling error with telemetry.
func (r *InstrumentedMeetingRepository) RecordProcessingError(ctx context.Context, id, message string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "record_processing_error", func(ctx context.Context) error {
		return r.repo.RecordProcessingError(ctx, id, message)
	})
}
