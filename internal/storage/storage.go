package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no meeting matches the requested id.
var ErrNotFound = errors.New("meeting not found")

// Meeting represents a meeting record and the processing state last seen for it.
type Meeting struct {
	ID       string
	Title    string
	FilePath string
	FileSize int64
	MimeType string

	// ProcessingState is empty until the meeting has been submitted for processing.
	ProcessingState string
	Stage           string
	Progress        int
	Error           string

	CreatedAt  time.Time
	UploadedAt time.Time // zero until a media file is attached
	UpdatedAt  time.Time
}

// HasFile reports whether a media file was attached.
func (m Meeting) HasFile() bool {
	return m.FilePath != ""
}

// ProcessingUpdate is the processing snapshot persisted for a meeting.
type ProcessingUpdate struct {
	State    string
	Stage    string
	Progress int
	Error    string
}

type MeetingReadRepository interface {
	GetMeeting(ctx context.Context, id string) (Meeting, error)
	ListMeetings(ctx context.Context) ([]Meeting, error)
	GetUnfinishedMeetings(ctx context.Context) ([]Meeting, error) // queued or processing
	GetExpiredMedia(ctx context.Context, uploadedBefore time.Time) ([]Meeting, error)
}

type MeetingWriteRepository interface {
	CreateMeeting(ctx context.Context, title string) (Meeting, error)
	DeleteMeeting(ctx context.Context, id string) error
	AttachFile(ctx context.Context, id, filePath string, size int64, mimeType string) error
	UpdateProcessing(ctx context.Context, id string, update ProcessingUpdate) error
	RecordProcessingError(ctx context.Context, id, message string) error // keeps the processing state
}

type MeetingRepository interface {
	MeetingReadRepository
	MeetingWriteRepository
}
