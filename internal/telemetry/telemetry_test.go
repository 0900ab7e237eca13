package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/meetingdesk/media_gateway/internal/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnabledTelemetry(t *testing.T) *Telemetry {
	t.Helper()

	tel, err := New(context.Background(), Config{Enabled: true, ServiceName: "media_gateway_test"})
	require.NoError(t, err)

	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	return tel
}

func scrape(t *testing.T, tel *Telemetry) string {
	t.Helper()

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	return rec.Body.String()
}

func TestDisabledTelemetryIsNoop(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()

	assert.NotPanics(t, func() {
		tel.RecordHTTPRequest(ctx, http.MethodGet, "/meetings", "2xx", time.Millisecond)
		tel.RecordMediaRequest(ctx, "range", 10)
		tel.RecordUpload(ctx, "success", 10)
		tel.RecordStatusPoll(ctx, "processing")
		tel.RecordProcessingJob(ctx, "completed")
		tel.IncrementActiveJobs(ctx)
		tel.DecrementActiveJobs(ctx)
		tel.RecordSystemError(ctx, "tracker", "panic")
	})

	called := false
	err = tel.InstrumentDBOperation(ctx, "get_meeting", func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	assert.NotNil(t, tel.Tracer())

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.NoError(t, tel.Shutdown(ctx))
}

func TestNilTelemetryIsNoop(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		tel.RecordMediaRequest(context.Background(), "full", 100)
		tel.RecordClientOperation(context.Background(), "backend", "get_status", "error")
	})

	sentinel := errors.New("boom")
	err := tel.InstrumentClientOperation(context.Background(), "backend", "get_status", func(ctx context.Context) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestEnabledTelemetryExportsBusinessMetrics(t *testing.T) {
	tel := newEnabledTelemetry(t)
	ctx := context.Background()

	tel.RecordMediaRequest(ctx, "range", 512)
	tel.RecordStatusPoll(ctx, "completed")

	sentinel := errors.New("connection refused")
	err := tel.InstrumentClientOperation(ctx, "backend", "get_status", func(ctx context.Context) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	body := scrape(t, tel)
	assert.Contains(t, body, "media_requests")
	assert.Contains(t, body, `kind="range"`)
	assert.Contains(t, body, "status_polls")
	assert.Contains(t, body, "client_errors")
}

func TestHTTPMiddlewareRecordsRoutePattern(t *testing.T) {
	tel := newEnabledTelemetry(t)

	r := chi.NewRouter()
	r.Use(NewHTTPMiddleware(tel).Middleware)
	r.Get("/meetings/{id}/file", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("abc"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/meetings/42/file", nil))
	require.Equal(t, http.StatusPartialContent, rec.Code)

	body := scrape(t, tel)
	assert.Contains(t, body, `route="/meetings/{id}/file"`)
	assert.NotContains(t, body, "/meetings/42/file")
}

func TestRequestID(t *testing.T) {
	var seen string

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logctx.RequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "upstream-id")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "upstream-id", seen)
		assert.Equal(t, "upstream-id", rec.Header().Get(RequestIDHeader))
	})
}

func TestHTTPLoggingLevels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"success", http.StatusOK, "INFO"},
		{"partial content", http.StatusPartialContent, "INFO"},
		{"range not satisfiable", http.StatusRequestedRangeNotSatisfiable, "WARN"},
		{"bad gateway", http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			handler := HTTPLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest(http.MethodGet, "/meetings/1/file", nil)
			req.Header.Set("Range", "bytes=0-9")
			req = req.WithContext(logctx.WithLogger(req.Context(), logger))

			handler.ServeHTTP(httptest.NewRecorder(), req)

			out := buf.String()
			assert.Contains(t, out, `"level":"`+tt.level+`"`)
			assert.Contains(t, out, `"range":"bytes=0-9"`)
		})
	}
}

func TestResponseWriterCountsBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)

	_, err := io.Copy(rw, strings.NewReader("0123456789"))
	require.NoError(t, err)

	rw.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, rw.status)
	assert.Equal(t, int64(10), rw.bytesWritten)
	assert.Same(t, rw, wrapResponseWriter(rw))
}

func TestGetStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", getStatusClass(http.StatusPartialContent))
	assert.Equal(t, "3xx", getStatusClass(http.StatusNotModified))
	assert.Equal(t, "4xx", getStatusClass(http.StatusRequestedRangeNotSatisfiable))
	assert.Equal(t, "5xx", getStatusClass(http.StatusBadGateway))
	assert.Equal(t, "unknown", getStatusClass(0))
}
