package processing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/meetingdesk/media_gateway/internal/logctx"
	"github.com/meetingdesk/media_gateway/internal/notifier"
	"github.com/meetingdesk/media_gateway/internal/storage"
	"github.com/meetingdesk/media_gateway/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const defaultMaxParallel = 4

// ErrTrackerClosed is returned by Track once Close was called.
var ErrTrackerClosed = errors.New("tracker is closed")

// MeetingStore is the part of the meeting repository the tracker writes to.
type MeetingStore interface {
	GetMeeting(ctx context.Context, id string) (storage.Meeting, error)
	GetUnfinishedMeetings(ctx context.Context) ([]storage.Meeting, error)
	UpdateProcessing(ctx context.Context, id string, update storage.ProcessingUpdate) error
	RecordProcessingError(ctx context.Context, id, message string) error
}

// TrackerOption customises a Tracker.
type TrackerOption func(*Tracker)

// WithMaxParallel bounds how many meetings Resume re-tracks concurrently.
func WithMaxParallel(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.maxParallel = n
		}
	}
}

// WithPollerOptions applies opts to every poller the tracker creates.
func WithPollerOptions(opts ...PollerOption) TrackerOption {
	return func(t *Tracker) {
		t.pollerOpts = append(t.pollerOpts, opts...)
	}
}

// Tracker owns one Poller per submitted meeting and persists what they observe.
type Tracker struct {
	backend     Backend
	store       MeetingStore
	notifier    notifier.Notifier
	telemetry   *telemetry.Telemetry
	pollerOpts  []PollerOption
	maxParallel int

	mu      sync.Mutex
	pollers map[string]*Poller
	closed  bool
}

func NewTracker(backend Backend, store MeetingStore, n notifier.Notifier, tel *telemetry.Telemetry, opts ...TrackerOption) *Tracker {
	if n == nil {
		n = notifier.Nop{}
	}

	t := &Tracker{
		backend:     backend,
		store:       store,
		notifier:    n,
		telemetry:   tel,
		maxParallel: defaultMaxParallel,
		pollers:     make(map[string]*Poller),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Process submits job to the backend, marks the meeting as queued and starts tracking it.
func (t *Tracker) Process(ctx context.Context, job Job) error {
	if err := t.backend.Submit(ctx, job); err != nil {
		return fmt.Errorf("failed to submit meeting %s: %w", job.MeetingID, err)
	}

	if err := t.store.UpdateProcessing(ctx, job.MeetingID, storage.ProcessingUpdate{State: string(StateQueued)}); err != nil {
		return fmt.Errorf("failed to mark meeting %s as queued: %w", job.MeetingID, err)
	}

	return t.Track(ctx, job.MeetingID)
}

// Track starts polling meetingID, or restarts a poller that stopped. A meeting that
// is being polled already is left alone. Polling outlives ctx; use Untrack or Close
// to stop it.
func (t *Tracker) Track(ctx context.Context, meetingID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTrackerClosed
	}

	p, ok := t.pollers[meetingID]
	if !ok {
		p = NewPoller(t.backend, meetingID, t.callbacks(context.WithoutCancel(ctx), meetingID), t.pollerOpts...)
		t.pollers[meetingID] = p
	}

	err := p.Start(context.WithoutCancel(ctx))
	if errors.Is(err, ErrAlreadyPolling) {
		return nil
	}

	if err != nil {
		return err
	}

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "tracking processing status", "meeting_id", meetingID, "restarted", ok)

	t.telemetry.IncrementActiveJobs(ctx)

	done := p.doneCh()

	go func() {
		<-done
		t.telemetry.DecrementActiveJobs(context.WithoutCancel(ctx))
	}()

	return nil
}

// Untrack stops and forgets the poller of meetingID.
func (t *Tracker) Untrack(meetingID string) {
	t.mu.Lock()
	p, ok := t.pollers[meetingID]
	delete(t.pollers, meetingID)
	t.mu.Unlock()

	if ok {
		p.Stop()
	}
}

// Tracking reports whether meetingID is currently being polled.
func (t *Tracker) Tracking(meetingID string) bool {
	t.mu.Lock()
	p, ok := t.pollers[meetingID]
	t.mu.Unlock()

	return ok && p.State() == PollerPolling
}

// Resume re-tracks every meeting whose stored state is queued or processing. It is
// called at startup so that jobs submitted before a restart are followed again.
func (t *Tracker) Resume(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	meetings, err := t.store.GetUnfinishedMeetings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load unfinished meetings: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.maxParallel)

	for _, m := range meetings {
		g.Go(func() error {
			if err := t.Track(gctx, m.ID); err != nil {
				if errors.Is(err, ErrTrackerClosed) {
					return err
				}

				logger.ErrorContext(gctx, "failed to resume tracking", "meeting_id", m.ID, "err", err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	logger.InfoContext(ctx, "resumed processing trackers", "count", len(meetings))

	return nil
}

// Close stops every poller and waits for their goroutines to exit.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true

	pollers := make([]*Poller, 0, len(t.pollers))
	for _, p := range t.pollers {
		pollers = append(pollers, p)
	}
	t.mu.Unlock()

	for _, p := range pollers {
		p.Stop()
	}

	for _, p := range pollers {
		p.Wait()
	}
}

func (t *Tracker) callbacks(ctx context.Context, meetingID string) Callbacks {
	logger := logctx.LoggerFromContext(ctx).With("meeting_id", meetingID)

	return Callbacks{
		OnStatusUpdate: func(s Status) {
			t.telemetry.RecordStatusPoll(ctx, string(s.State))

			if err := t.store.UpdateProcessing(ctx, meetingID, toUpdate(s)); err != nil {
				logger.ErrorContext(ctx, "failed to persist processing status", "err", err)
			}
		},
		OnComplete: func(s Status) {
			t.telemetry.RecordProcessingJob(ctx, "completed")

			if err := t.store.UpdateProcessing(ctx, meetingID, toUpdate(s)); err != nil {
				logger.ErrorContext(ctx, "failed to persist completion", "err", err)
			}

			logger.InfoContext(ctx, "meeting processing completed")
			t.notify(ctx, meetingID, "Processing finished", "")
		},
		OnError: func(err error) {
			var failure *UpstreamFailureError
			if errors.As(err, &failure) {
				t.telemetry.RecordProcessingJob(ctx, "failed")

				update := storage.ProcessingUpdate{State: string(StateFailed), Stage: failure.Stage, Error: failure.Message}
				if err := t.store.UpdateProcessing(ctx, meetingID, update); err != nil {
					logger.ErrorContext(ctx, "failed to persist processing failure", "err", err)
				}

				logger.WarnContext(ctx, "meeting processing failed", "stage", failure.Stage, "reason", failure.Message)
				t.notify(ctx, meetingID, "Processing failed", failure.Message)

				return
			}

			t.telemetry.RecordStatusPoll(ctx, "error")
			t.telemetry.RecordProcessingJob(ctx, "errored")

			if err := t.store.RecordProcessingError(ctx, meetingID, err.Error()); err != nil {
				logger.ErrorContext(ctx, "failed to persist polling error", "err", err)
			}

			logger.ErrorContext(ctx, "status polling stopped", "err", err)
			t.notify(ctx, meetingID, "Status polling stopped", err.Error())
		},
	}
}

// notify sends "<headline>: <meeting title>[: <detail>]".
func (t *Tracker) notify(ctx context.Context, meetingID, headline, detail string) {
	name := meetingID
	if m, err := t.store.GetMeeting(ctx, meetingID); err == nil && m.Title != "" {
		name = m.Title
	}

	msg := headline + ": " + name
	if detail != "" {
		msg += ": " + detail
	}

	if err := t.notifier.Notify(ctx, msg); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to send notification", "meeting_id", meetingID, "err", err)
	}
}

func toUpdate(s Status) storage.ProcessingUpdate {
	return storage.ProcessingUpdate{
		State:    string(s.State),
		Stage:    s.Stage,
		Progress: s.Progress,
		Error:    s.Error,
	}
}
