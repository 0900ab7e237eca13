package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/meetingdesk/media_gateway/internal/storage"
	"github.com/meetingdesk/media_gateway/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ storage.MeetingRepository = (*MeetingRepository)(nil)
	_ storage.MeetingRepository = (*InstrumentedMeetingRepository)(nil)
)

func newTestRepository(t *testing.T) *MeetingRepository {
	t.Helper()

	db, err := InitDB(":memory:")
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return NewMeetingRepository(db)
}

// fixedClock returns a clock that starts at start and advances by step on every call.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	now := start

	return func() time.Time {
		t := now
		now = now.Add(step)

		return t
	}
}

func TestInitDBIsIdempotent(t *testing.T) {
	path := t.TempDir() + "/meetings.db"

	db, err := InitDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestCreateAndGetMeeting(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	created, err := repo.CreateMeeting(ctx, "Quarterly review")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := repo.GetMeeting(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, created, got)
	assert.False(t, got.HasFile())
	assert.Empty(t, got.ProcessingState)
	assert.True(t, got.UploadedAt.IsZero())
}

func TestGetMeetingNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetMeeting(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListMeetingsNewestFirst(t *testing.T) {
	repo := newTestRepository(t)
	repo.now = fixedClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), time.Minute)
	ctx := context.Background()

	first, err := repo.CreateMeeting(ctx, "standup")
	require.NoError(t, err)

	second, err := repo.CreateMeeting(ctx, "retro")
	require.NoError(t, err)

	meetings, err := repo.ListMeetings(ctx)
	require.NoError(t, err)
	require.Len(t, meetings, 2)

	assert.Equal(t, second.ID, meetings[0].ID)
	assert.Equal(t, first.ID, meetings[1].ID)
}

func TestAttachFileResetsProcessing(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	m, err := repo.CreateMeeting(ctx, "all hands")
	require.NoError(t, err)

	require.NoError(t, repo.UpdateProcessing(ctx, m.ID, storage.ProcessingUpdate{State: "failed", Error: "corrupt audio"}))
	require.NoError(t, repo.AttachFile(ctx, m.ID, "/media/"+m.ID+"/rec.mp4", 1024, "video/mp4"))

	got, err := repo.GetMeeting(ctx, m.ID)
	require.NoError(t, err)

	assert.True(t, got.HasFile())
	assert.Equal(t, int64(1024), got.FileSize)
	assert.Equal(t, "video/mp4", got.MimeType)
	assert.False(t, got.UploadedAt.IsZero())
	assert.Empty(t, got.ProcessingState)
	assert.Empty(t, got.Error)

	assert.ErrorIs(t, repo.AttachFile(ctx, "missing", "/x", 1, "video/mp4"), storage.ErrNotFound)
}

func TestUpdateProcessingAndUnfinished(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	queued, err := repo.CreateMeeting(ctx, "queued")
	require.NoError(t, err)
	running, err := repo.CreateMeeting(ctx, "running")
	require.NoError(t, err)
	done, err := repo.CreateMeeting(ctx, "done")
	require.NoError(t, err)
	_, err = repo.CreateMeeting(ctx, "never submitted")
	require.NoError(t, err)

	require.NoError(t, repo.UpdateProcessing(ctx, queued.ID, storage.ProcessingUpdate{State: "queued"}))
	require.NoError(t, repo.UpdateProcessing(ctx, running.ID, storage.ProcessingUpdate{State: "processing", Stage: "transcribing", Progress: 40}))
	require.NoError(t, repo.UpdateProcessing(ctx, done.ID, storage.ProcessingUpdate{State: "completed", Progress: 100}))

	unfinished, err := repo.GetUnfinishedMeetings(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(unfinished))
	for _, m := range unfinished {
		ids = append(ids, m.ID)
	}

	assert.ElementsMatch(t, []string{queued.ID, running.ID}, ids)

	got, err := repo.GetMeeting(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, "transcribing", got.Stage)
	assert.Equal(t, 40, got.Progress)

	assert.ErrorIs(t, repo.UpdateProcessing(ctx, "missing", storage.ProcessingUpdate{State: "queued"}), storage.ErrNotFound)
}

func TestRecordProcessingErrorKeepsState(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	m, err := repo.CreateMeeting(ctx, "sync")
	require.NoError(t, err)

	require.NoError(t, repo.UpdateProcessing(ctx, m.ID, storage.ProcessingUpdate{State: "processing", Progress: 10}))
	require.NoError(t, repo.RecordProcessingError(ctx, m.ID, "connection refused"))

	got, err := repo.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "processing", got.ProcessingState)
	assert.Equal(t, "connection refused", got.Error)
}

func TestGetExpiredMedia(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }

	old, err := repo.CreateMeeting(ctx, "old")
	require.NoError(t, err)
	require.NoError(t, repo.AttachFile(ctx, old.ID, "/media/old.mp4", 10, "video/mp4"))

	repo.now = func() time.Time { return base.Add(48 * time.Hour) }

	recent, err := repo.CreateMeeting(ctx, "recent")
	require.NoError(t, err)
	require.NoError(t, repo.AttachFile(ctx, recent.ID, "/media/recent.mp4", 10, "video/mp4"))

	_, err = repo.CreateMeeting(ctx, "no file")
	require.NoError(t, err)

	expired, err := repo.GetExpiredMedia(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)
}

func TestDeleteMeeting(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	m, err := repo.CreateMeeting(ctx, "delete me")
	require.NoError(t, err)

	require.NoError(t, repo.DeleteMeeting(ctx, m.ID))
	assert.ErrorIs(t, repo.DeleteMeeting(ctx, m.ID), storage.ErrNotFound)

	_, err = repo.GetMeeting(ctx, m.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInstrumentedRepositoryDelegates(t *testing.T) {
	db, err := InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tel, err := telemetry.New(context.Background(), telemetry.Config{Enabled: false})
	require.NoError(t, err)

	repo := NewInstrumentedMeetingRepository(db, tel)
	ctx := context.Background()

	m, err := repo.CreateMeeting(ctx, "instrumented")
	require.NoError(t, err)

	got, err := repo.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "instrumented", got.Title)

	_, err = repo.GetMeeting(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
