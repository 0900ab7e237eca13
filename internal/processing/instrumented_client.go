package processing

import (
	"context"

	"github.com/meetingdesk/media_gateway/internal/telemetry"
)

// InstrumentedBackend wraps a Backend with telemetry.
type InstrumentedBackend struct {
	backend    Backend
	telemetry  *telemetry.Telemetry
	clientType string
}

// NewInstrumentedBackend creates a new instrumented backend client.
func NewInstrumentedBackend(backend Backend, tel *telemetry.Telemetry, clientType string) *InstrumentedBackend {
	return &InstrumentedBackend{
		backend:    backend,
		telemetry:  tel,
		clientType: clientType,
	}
}

// GetStatus fetches a status with telemetry.
func (b *InstrumentedBackend) GetStatus(ctx context.Context, meetingID string) (Status, error) {
	var result Status

	err := b.telemetry.InstrumentClientOperation(ctx, b.clientType, "get_status", func(ctx context.Context) error {
		var err error
		result, err = b.backend.GetStatus(ctx, meetingID)

		return err
	})
	if err != nil {
		return Status{}, err
	}

	return result, nil
}

// Submit submits a job with telemetry.
func (b *InstrumentedBackend) Submit(ctx context.Context, job Job) error {
	return b.telemetry.InstrumentClientOperation(ctx, b.clientType, "submit", func(ctx context.Context) error {
		return b.backend.Submit(ctx, job)
	})
}
