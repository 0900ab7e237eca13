package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meetingdesk/media_gateway/internal/logctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

const (
	maxStatusBodySize = 1 << 20
	maxErrorBodySize  = 1 << 10
	defaultTimeout    = 30 * time.Second
)

// StatusClient queries the processing status of a meeting.
type StatusClient interface {
	GetStatus(ctx context.Context, meetingID string) (Status, error)
}

// Backend is the external transcription/AI service.
type Backend interface {
	StatusClient
	Submit(ctx context.Context, job Job) error
}

// Job is the payload submitted to the backend. The backend downloads the media
// from MediaURL, which points back at the gateway file endpoint.
type Job struct {
	MeetingID string `json:"meeting_id"`
	MediaURL  string `json:"media_url"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// Client talks to a service exposing /meetings/{id}/status and
// /meetings/{id}/process: the processing backend, or the gateway itself.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption customises Client construction.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client. The caller is responsible for authentication.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a client for baseURL. A non-empty token is sent as a bearer token.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	var transport http.RoundTripper = otelhttp.NewTransport(http.DefaultTransport)

	if token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   transport,
		}
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetStatus implements StatusClient.
func (c *Client) GetStatus(ctx context.Context, meetingID string) (Status, error) {
	const operation = "get_status"

	logger := logctx.LoggerFromContext(ctx).With("meeting_id", meetingID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.meetingURL(meetingID, "status"), nil)
	if err != nil {
		return Status{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{}, &NetworkError{Operation: operation, APIMessage: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if err := checkResponse(operation, resp); err != nil {
		if resp.StatusCode == http.StatusNotFound {
			return Status{}, fmt.Errorf("meeting %s: %w", meetingID, ErrJobNotFound)
		}

		return Status{}, err
	}

	status, err := decodeStatus(io.LimitReader(resp.Body, maxStatusBodySize))
	if err != nil {
		return Status{}, &NetworkError{Operation: operation, StatusCode: resp.StatusCode, APIMessage: err.Error(), Err: err}
	}

	logger.DebugContext(ctx, "fetched processing status", "state", status.State, "stage", status.Stage, "progress", status.Progress)

	return status, nil
}

// Submit implements Backend. A 409 answer means the backend already has the job.
func (c *Client) Submit(ctx context.Context, job Job) error {
	const operation = "submit"

	logger := logctx.LoggerFromContext(ctx).With("meeting_id", job.MeetingID)

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.meetingURL(job.MeetingID, "process"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Operation: operation, APIMessage: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		logger.InfoContext(ctx, "processing job already exists")

		return nil
	}

	if err := checkResponse(operation, resp); err != nil {
		return err
	}

	logger.InfoContext(ctx, "processing job submitted", "media_url", job.MediaURL)

	return nil
}

func (c *Client) meetingURL(meetingID, action string) string {
	return c.baseURL + "/meetings/" + url.PathEscape(meetingID) + "/" + action
}

func checkResponse(operation string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthenticationError{Operation: operation, StatusCode: resp.StatusCode}
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	return &NetworkError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		APIMessage: apiMessage(b, resp.Status),
	}
}

// apiMessage extracts the "error" field of a JSON error body, falling back to the raw body.
func apiMessage(body []byte, fallback string) string {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}

	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}

		if payload.Detail != "" {
			return payload.Detail
		}
	}

	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}

	return fallback
}

func decodeStatus(r io.Reader) (Status, error) {
	var status Status
	if err := json.NewDecoder(r).Decode(&status); err != nil {
		return Status{}, fmt.Errorf("failed to decode status: %w", err)
	}

	status = status.Normalize()

	switch status.State {
	case StateQueued, StateProcessing, StateCompleted, StateFailed:
	case "":
		return Status{}, errors.New("status payload has no status field")
	default:
		// backends report their pipeline steps ("transcribing", "diarizing") as the status
		if status.Stage == "" {
			status.Stage = string(status.State)
		}

		status.State = StateProcessing
	}

	return status, nil
}
