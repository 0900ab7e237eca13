package processing

import "strings"

// State is the lifecycle state of a processing job as reported by the backend.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Status is a snapshot of a processing job. Its JSON shape is the one exposed by
// the backend and re-exposed unchanged by the gateway status endpoint.
type Status struct {
	State    State  `json:"status"`
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// Normalize lower-cases the state and clamps the progress to 0..100.
func (s Status) Normalize() Status {
	s.State = State(strings.ToLower(strings.TrimSpace(string(s.State))))

	switch {
	case s.Progress < 0:
		s.Progress = 0
	case s.Progress > 100:
		s.Progress = 100
	}

	if s.State == StateCompleted {
		s.Progress = 100
	}

	return s
}

// IsTerminal reports whether no further transition can happen.
func (s Status) IsTerminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

// IsActive reports whether the job is still queued or running.
func (s Status) IsActive() bool {
	return s.State == StateQueued || s.State == StateProcessing
}

// FailureMessage returns the backend supplied message of a failed job.
func (s Status) FailureMessage() string {
	if s.Error != "" {
		return s.Error
	}

	return "processing failed"
}
