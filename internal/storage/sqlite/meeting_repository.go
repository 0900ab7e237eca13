package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/meetingdesk/media_gateway/internal/storage"
)

// timeLayout is fixed width so that stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const meetingColumns = `id, title, file_path, file_size, mime_type, processing_state, stage, progress, error, created_at, uploaded_at, updated_at`

// MeetingRepository implements storage.MeetingRepository on top of SQLite.
type MeetingRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewMeetingRepository(dbConn *sql.DB) *MeetingRepository {
	return &MeetingRepository{db: dbConn, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row rowScanner) (storage.Meeting, error) {
	var (
		m                    storage.Meeting
		createdAt, updatedAt string
		uploadedAt           sql.NullString
	)

	err := row.Scan(
		&m.ID, &m.Title, &m.FilePath, &m.FileSize, &m.MimeType,
		&m.ProcessingState, &m.Stage, &m.Progress, &m.Error,
		&createdAt, &uploadedAt, &updatedAt,
	)
	if err != nil {
		return storage.Meeting{}, err
	}

	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return storage.Meeting{}, err
	}

	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return storage.Meeting{}, err
	}

	if uploadedAt.Valid {
		if m.UploadedAt, err = parseTime(uploadedAt.String); err != nil {
			return storage.Meeting{}, err
		}
	}

	return m, nil
}

func scanMeetings(rows *sql.Rows) ([]storage.Meeting, error) {
	defer rows.Close()

	var meetings []storage.Meeting

	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}

		meetings = append(meetings, m)
	}

	return meetings, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}

	return t, nil
}

func expectOneRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return fmt.Errorf("meeting %s: %w", id, storage.ErrNotFound)
	}

	return nil
}
