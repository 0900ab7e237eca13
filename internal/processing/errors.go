package processing

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when the backend has no job for a meeting.
	ErrJobNotFound = errors.New("processing job not found")

	// ErrAlreadyPolling is returned by Poller.Start while a loop is running.
	ErrAlreadyPolling = errors.New("poller is already polling")
)

// UpstreamFailureError is delivered to OnError when the backend reports that
// processing failed.
type UpstreamFailureError struct {
	MeetingID string
	Stage     string
	Message   string
}

func (e *UpstreamFailureError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("processing of meeting %s failed during %s: %s", e.MeetingID, e.Stage, e.Message)
	}

	return fmt.Sprintf("processing of meeting %s failed: %s", e.MeetingID, e.Message)
}

// NetworkError represents transport failures, unexpected status codes and
// undecodable payloads returned by the backend.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "get_status", "submit")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	APIMessage string // Error message from the API or network layer
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.APIMessage)
	}

	return fmt.Sprintf("network error during %s: %s", e.Operation, e.APIMessage)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AuthenticationError represents 401 Unauthorized and 403 Forbidden responses.
type AuthenticationError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed during %s (HTTP %d)", e.Operation, e.StatusCode)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}
