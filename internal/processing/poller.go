package processing

import (
	"context"
	"sync"
	"time"

	"github.com/meetingdesk/media_gateway/internal/logctx"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultSettleDelay  = 500 * time.Millisecond
)

// PollerState is the state of a Poller.
//
//	Idle -> Polling -> {Completed, Failed, Errored}
//
// Start moves any non-Polling state back to Polling.
type PollerState int

const (
	PollerIdle PollerState = iota
	PollerPolling
	PollerCompleted
	PollerFailed
	PollerErrored
)

func (s PollerState) String() string {
	switch s {
	case PollerIdle:
		return "idle"
	case PollerPolling:
		return "polling"
	case PollerCompleted:
		return "completed"
	case PollerFailed:
		return "failed"
	case PollerErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Callbacks are invoked from the poller goroutine, one at a time, in the order
// the statuses were observed. Any of them may be nil.
type Callbacks struct {
	// OnStatusUpdate receives every successfully fetched status.
	OnStatusUpdate func(Status)
	// OnComplete fires once, a settle delay after a completed status was observed.
	OnComplete func(Status)
	// OnError fires once with an *UpstreamFailureError when the backend reports a
	// failure, or with the query error when a status could not be fetched.
	OnError func(error)
}

// PollerOption customises a Poller.
type PollerOption func(*Poller)

// WithInterval sets the delay between the end of one query and the start of the next.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithSettleDelay sets the delay between observing completion and calling OnComplete.
func WithSettleDelay(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.settleDelay = d
	}
}

// Poller queries the processing status of one meeting until the job reaches a
// terminal state, the query fails, or the poller is stopped. Queries are serial:
// the next one is scheduled only after the previous one returned.
type Poller struct {
	client      StatusClient
	meetingID   string
	callbacks   Callbacks
	interval    time.Duration
	settleDelay time.Duration

	mu      sync.Mutex
	state   PollerState
	last    Status
	hasLast bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller creates an idle poller for meetingID.
func NewPoller(client StatusClient, meetingID string, callbacks Callbacks, opts ...PollerOption) *Poller {
	p := &Poller{
		client:      client,
		meetingID:   meetingID,
		callbacks:   callbacks,
		interval:    DefaultPollInterval,
		settleDelay: DefaultSettleDelay,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start issues a query immediately and keeps polling in a new goroutine. It fails
// with ErrAlreadyPolling while a loop is running; from any other state it starts
// over, which is how a caller retries after an error. Cancelling ctx stops the loop
// like Stop does.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == PollerPolling {
		return ErrAlreadyPolling
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.state = PollerPolling
	p.last = Status{}
	p.hasLast = false
	p.ctx = runCtx
	p.cancel = cancel
	p.done = done

	go p.run(runCtx, done)

	return nil
}

// Stop cancels the running loop. No callback begins after Stop returns and the
// result of a query still in flight is discarded. A callback that is already
// executing finishes normally.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}

	if p.state == PollerPolling {
		p.state = PollerIdle
	}
}

// Wait blocks until the current loop goroutine has exited. It must not be called
// from a callback.
func (p *Poller) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (p *Poller) doneCh() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.done
}

// State returns the current state.
func (p *Poller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Last returns the most recent status observed by the current loop.
func (p *Poller) Last() (Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.last, p.hasLast
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer p.release(done)

	logger := logctx.LoggerFromContext(ctx).With("meeting_id", p.meetingID)

	for {
		status, err := p.client.GetStatus(ctx, p.meetingID)
		if ctx.Err() != nil {
			logger.DebugContext(ctx, "status poll cancelled")

			return
		}

		if err != nil {
			logger.DebugContext(ctx, "status query failed", "err", err)

			if p.transition(done, PollerErrored) {
				p.emit(done, func() { p.onError(err) })
			}

			return
		}

		if !p.observe(done, status) {
			return
		}

		p.emit(done, func() { p.onStatusUpdate(status) })

		switch status.State {
		case StateCompleted:
			if !p.transition(done, PollerCompleted) || !sleepContext(ctx, p.settleDelay) {
				return
			}

			p.emit(done, func() { p.onComplete(status) })

			return
		case StateFailed:
			if p.transition(done, PollerFailed) {
				failure := &UpstreamFailureError{MeetingID: p.meetingID, Stage: status.Stage, Message: status.FailureMessage()}
				p.emit(done, func() { p.onError(failure) })
			}

			return
		}

		if !sleepContext(ctx, p.interval) {
			return
		}
	}
}

// current reports whether the loop identified by done is still the active,
// uncancelled one. Callers hold p.mu.
func (p *Poller) current(done chan struct{}) bool {
	return p.done == done && p.ctx != nil && p.ctx.Err() == nil
}

func (p *Poller) observe(done chan struct{}, status Status) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.current(done) {
		return false
	}

	p.last = status
	p.hasLast = true

	return true
}

func (p *Poller) transition(done chan struct{}, state PollerState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.current(done) {
		return false
	}

	p.state = state

	return true
}

// emit runs fn unless the loop was cancelled or replaced in the meantime.
func (p *Poller) emit(done chan struct{}, fn func()) {
	p.mu.Lock()
	ok := p.current(done)
	p.mu.Unlock()

	if ok {
		fn()
	}
}

func (p *Poller) release(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != done {
		return
	}

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}

	if p.state == PollerPolling {
		p.state = PollerIdle
	}
}

func (p *Poller) onStatusUpdate(status Status) {
	if p.callbacks.OnStatusUpdate != nil {
		p.callbacks.OnStatusUpdate(status)
	}
}

func (p *Poller) onComplete(status Status) {
	if p.callbacks.OnComplete != nil {
		p.callbacks.OnComplete(status)
	}
}

func (p *Poller) onError(err error) {
	if p.callbacks.OnError != nil {
		p.callbacks.OnError(err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
