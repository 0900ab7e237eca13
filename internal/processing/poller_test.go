package processing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedResponse struct {
	status Status
	err    error
}

// scriptedClient answers status queries from a fixed script; the last entry repeats.
type scriptedClient struct {
	mu        sync.Mutex
	script    []scriptedResponse
	calls     int
	inFlight  int32
	maxFlight int32
}

func (c *scriptedClient) GetStatus(ctx context.Context, meetingID string) (Status, error) {
	n := atomic.AddInt32(&c.inFlight, 1)
	defer atomic.AddInt32(&c.inFlight, -1)

	for {
		m := atomic.LoadInt32(&c.maxFlight)
		if n <= m || atomic.CompareAndSwapInt32(&c.maxFlight, m, n) {
			break
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.calls
	if i >= len(c.script) {
		i = len(c.script) - 1
	}
	c.calls++

	return c.script[i].status, c.script[i].err
}

func (c *scriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

type recorder struct {
	mu        sync.Mutex
	updates   []Status
	completes []Status
	errs      []error
	events    []string
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnStatusUpdate: func(s Status) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.updates = append(r.updates, s)
			r.events = append(r.events, "update:"+string(s.State))
		},
		OnComplete: func(s Status) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completes = append(r.completes, s)
			r.events = append(r.events, "complete")
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
			r.events = append(r.events, "error")
		},
	}
}

func (r *recorder) snapshot() (updates []Status, completes []Status, errs []error, events []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Status(nil), r.updates...),
		append([]Status(nil), r.completes...),
		append([]error(nil), r.errs...),
		append([]string(nil), r.events...)
}

func fastPoller(client StatusClient, rec *recorder) *Poller {
	return NewPoller(client, "meeting-1", rec.callbacks(), WithInterval(5*time.Millisecond), WithSettleDelay(5*time.Millisecond))
}

func TestPoller_CompletesAfterScriptedSequence(t *testing.T) {
	client := &scriptedClient{script: []scriptedResponse{
		{status: Status{State: StateQueued}},
		{status: Status{State: StateProcessing, Stage: "transcribing", Progress: 30}},
		{status: Status{State: StateProcessing, Stage: "summarizing", Progress: 80}},
		{status: Status{State: StateCompleted, Progress: 100}},
	}}
	rec := &recorder{}
	p := fastPoller(client, rec)

	require.NoError(t, p.Start(context.Background()))
	p.Wait()

	updates, completes, errs, events := rec.snapshot()

	require.Len(t, updates, 4)
	assert.Equal(t, StateQueued, updates[0].State)
	assert.Equal(t, "transcribing", updates[1].Stage)
	assert.Equal(t, "summarizing", updates[2].Stage)
	assert.Equal(t, StateCompleted, updates[3].State)

	require.Len(t, completes, 1)
	assert.Empty(t, errs)
	assert.Equal(t, "complete", events[len(events)-1])
	assert.Equal(t, PollerCompleted, p.State())

	last, ok := p.Last()
	require.True(t, ok)
	assert.Equal(t, StateCompleted, last.State)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 4, client.Calls(), "no query after a terminal state")
}

func TestPoller_StopsOnUpstreamFailure(t *testing.T) {
	client := &scriptedClient{script: []scriptedResponse{
		{status: Status{State: StateQueued}},
		{status: Status{State: StateFailed, Stage: "diarization", Error: "audio track is empty"}},
	}}
	rec := &recorder{}
	p := fastPoller(client, rec)

	require.NoError(t, p.Start(context.Background()))
	p.Wait()

	updates, completes, errs, _ := rec.snapshot()

	assert.Len(t, updates, 2)
	assert.Empty(t, completes)
	require.Len(t, errs, 1)

	var failure *UpstreamFailureError
	require.ErrorAs(t, errs[0], &failure)
	assert.Equal(t, "audio track is empty", failure.Message)
	assert.Equal(t, "diarization", failure.Stage)
	assert.Equal(t, PollerFailed, p.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, client.Calls())
}

func TestPoller_QueryErrorIsNotRetriedAutomatically(t *testing.T) {
	transportErr := &NetworkError{Operation: "get_status", APIMessage: "connection refused"}
	client := &scriptedClient{script: []scriptedResponse{
		{status: Status{State: StateProcessing}},
		{err: transportErr},
		{status: Status{State: StateCompleted}},
	}}
	rec := &recorder{}
	p := fastPoller(client, rec)

	require.NoError(t, p.Start(context.Background()))
	p.Wait()

	_, completes, errs, _ := rec.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], transportErr)
	assert.Empty(t, completes)
	assert.Equal(t, PollerErrored, p.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, client.Calls())

	// explicit retry
	require.NoError(t, p.Start(context.Background()))
	p.Wait()

	_, completes, errs, _ = rec.snapshot()
	assert.Len(t, errs, 1)
	assert.Len(t, completes, 1)
	assert.Equal(t, PollerCompleted, p.State())
}

// blockingClient holds every query until release is closed and ignores cancellation.
type blockingClient struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *blockingClient) GetStatus(ctx context.Context, meetingID string) (Status, error) {
	c.once.Do(func() { close(c.started) })
	<-c.release

	return Status{State: StateCompleted}, nil
}

func TestPoller_StopDiscardsInFlightQuery(t *testing.T) {
	client := &blockingClient{started: make(chan struct{}), release: make(chan struct{})}
	rec := &recorder{}
	p := fastPoller(client, rec)

	require.NoError(t, p.Start(context.Background()))
	<-client.started

	p.Stop()
	assert.Equal(t, PollerIdle, p.State())

	close(client.release)
	p.Wait()
	time.Sleep(20 * time.Millisecond)

	_, _, _, events := rec.snapshot()
	assert.Empty(t, events)

	_, ok := p.Last()
	assert.False(t, ok)
}

func TestPoller_ContextCancellationStopsLoop(t *testing.T) {
	client := &scriptedClient{script: []scriptedResponse{{status: Status{State: StateProcessing}}}}
	rec := &recorder{}
	p := fastPoller(client, rec)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))

	require.Eventually(t, func() bool { return client.Calls() >= 2 }, time.Second, time.Millisecond)

	cancel()
	p.Wait()

	calls := client.Calls()
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, calls, client.Calls())
	assert.Equal(t, PollerIdle, p.State())
}

func TestPoller_StopDuringSettleDelaySuppressesOnComplete(t *testing.T) {
	client := &scriptedClient{script: []scriptedResponse{{status: Status{State: StateCompleted}}}}
	rec := &recorder{}

	var p *Poller

	callbacks := rec.callbacks()
	update := callbacks.OnStatusUpdate
	callbacks.OnStatusUpdate = func(s Status) {
		update(s)
		p.Stop()
	}

	p = NewPoller(client, "meeting-1", callbacks, WithSettleDelay(50*time.Millisecond))

	require.NoError(t, p.Start(context.Background()))
	p.Wait()

	updates, completes, _, _ := rec.snapshot()
	assert.Len(t, updates, 1)
	assert.Empty(t, completes)
}

func TestPoller_StartWhilePolling(t *testing.T) {
	client := &blockingClient{started: make(chan struct{}), release: make(chan struct{})}
	p := fastPoller(client, &recorder{})

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, errors.Is(p.Start(context.Background()), ErrAlreadyPolling))

	p.Stop()
	close(client.release)
	p.Wait()
}

func TestPoller_QueriesAreSerial(t *testing.T) {
	script := make([]scriptedResponse, 0, 20)
	for i := 0; i < 19; i++ {
		script = append(script, scriptedResponse{status: Status{State: StateProcessing, Progress: i * 5}})
	}
	script = append(script, scriptedResponse{status: Status{State: StateCompleted}})

	client := &scriptedClient{script: script}
	rec := &recorder{}
	p := NewPoller(client, "meeting-1", rec.callbacks(), WithInterval(0), WithSettleDelay(0))

	require.NoError(t, p.Start(context.Background()))
	p.Wait()

	updates, completes, _, _ := rec.snapshot()
	require.Len(t, updates, 20)
	for i := 1; i < 19; i++ {
		assert.Greater(t, updates[i].Progress, updates[i-1].Progress)
	}

	assert.Len(t, completes, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&client.maxFlight))
}

func TestPollerStateString(t *testing.T) {
	assert.Equal(t, "idle", PollerIdle.String())
	assert.Equal(t, "polling", PollerPolling.String())
	assert.Equal(t, "completed", PollerCompleted.String())
	assert.Equal(t, "failed", PollerFailed.String())
	assert.Equal(t, "errored", PollerErrored.String())
}
