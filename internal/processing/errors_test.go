package processing

import (
	"errors"
	"fmt"
	"testing"
)

// TestUpstreamFailureError_Error verifies error message formatting
func TestUpstreamFailureError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *UpstreamFailureError
		want string
	}{
		{
			name: "with stage",
			err:  &UpstreamFailureError{MeetingID: "m-1", Stage: "transcribing", Message: "unsupported codec"},
			want: "processing of meeting m-1 failed during transcribing: unsupported codec",
		},
		{
			name: "without stage",
			err:  &UpstreamFailureError{MeetingID: "m-1", Message: "processing failed"},
			want: "processing of meeting m-1 failed: processing failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestNetworkError_Error verifies error message formatting
func TestNetworkError_Error(t *testing.T) {
	tests := []struct {
		name       string
		err        *NetworkError
		wantFormat string
	}{
		{
			name: "with HTTP status code",
			err: &NetworkError{
				Operation:  "get_status",
				StatusCode: 503,
				APIMessage: "service unavailable",
			},
			wantFormat: "network error during get_status (HTTP 503): service unavailable",
		},
		{
			name: "without HTTP status code",
			err: &NetworkError{
				Operation:  "submit",
				APIMessage: "connection timeout",
			},
			wantFormat: "network error during submit: connection timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantFormat {
				t.Errorf("Error() = %q, want %q", got, tt.wantFormat)
			}
		})
	}
}

// TestAuthenticationError_Error verifies error message formatting
func TestAuthenticationError_Error(t *testing.T) {
	err := &AuthenticationError{Operation: "get_status", StatusCode: 401}

	expected := "authentication failed during get_status (HTTP 401)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

// TestErrorUnwrapping verifies errors.As and errors.Is through wrapping
func TestErrorUnwrapping(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	t.Run("NetworkError unwraps to cause", func(t *testing.T) {
		err := fmt.Errorf("poll: %w", &NetworkError{Operation: "get_status", APIMessage: cause.Error(), Err: cause})

		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			t.Fatal("errors.As should find NetworkError")
		}

		if !errors.Is(err, cause) {
			t.Error("errors.Is should reach the underlying cause")
		}
	})

	t.Run("AuthenticationError unwraps to cause", func(t *testing.T) {
		err := &AuthenticationError{Operation: "submit", StatusCode: 403, Err: cause}
		if !errors.Is(err, cause) {
			t.Error("errors.Is should reach the underlying cause")
		}
	})

	t.Run("ErrJobNotFound survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("meeting m-1: %w", ErrJobNotFound)
		if !errors.Is(err, ErrJobNotFound) {
			t.Error("errors.Is should match ErrJobNotFound")
		}
	})
}
