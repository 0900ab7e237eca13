package rest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/meetingdesk/media_gateway/internal/logctx"
	"github.com/meetingdesk/media_gateway/internal/media"
	"github.com/meetingdesk/media_gateway/internal/processing"
	"github.com/meetingdesk/media_gateway/internal/storage"
	"github.com/meetingdesk/media_gateway/internal/telemetry"
)

const (
	maxJSONBodySize   = 1 << 20 // 1MB
	multipartOverhead = 1 << 20 // room for part headers and boundaries
	uploadFieldName   = "file"
)

// Tracker submits meetings for processing and follows their status.
type Tracker interface {
	Process(ctx context.Context, job processing.Job) error
	Track(ctx context.Context, meetingID string) error
	Untrack(meetingID string)
	Tracking(meetingID string) bool
}

// MediaStore persists uploaded media files.
type MediaStore interface {
	Save(ctx context.Context, meetingID, filename string, size int64, r io.Reader) (media.Descriptor, error)
	Remove(path string) error
	RemoveMeeting(meetingID string) error
}

// MeetingHandlerConfig holds the settings of MeetingHandler.
type MeetingHandlerConfig struct {
	Username      string
	Password      string
	MaxUploadSize int64
	// MediaURL returns the URL the processing backend downloads a meeting's media from.
	MediaURL func(meetingID string) string
}

type MeetingHandler struct {
	cfg       MeetingHandlerConfig
	meetings  storage.MeetingRepository
	media     MediaStore
	files     *media.FileServer
	status    processing.StatusClient
	tracker   Tracker
	telemetry *telemetry.Telemetry
}

// NewMeetingHandler creates a new meeting handler.
func NewMeetingHandler(
	cfg MeetingHandlerConfig,
	meetings storage.MeetingRepository,
	mediaStore MediaStore,
	files *media.FileServer,
	status processing.StatusClient,
	tracker Tracker,
	t *telemetry.Telemetry,
) *MeetingHandler {
	return &MeetingHandler{
		cfg:       cfg,
		meetings:  meetings,
		media:     mediaStore,
		files:     files,
		status:    status,
		tracker:   tracker,
		telemetry: t,
	}
}

func (h *MeetingHandler) Routes() http.Handler {
	r := chi.NewRouter()

	if h.cfg.Username != "" || h.cfg.Password != "" {
		r.Use(h.basicAuthMiddleware)
	}

	r.Route("/meetings", func(r chi.Router) {
		r.Get("/", h.ListMeetings)
		r.Post("/", h.CreateMeeting)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetMeeting)
			r.Delete("/", h.DeleteMeeting)

			r.Put("/file", h.UploadFile)
			r.Get("/file", h.ServeFile)
			r.Head("/file", h.ServeFile)

			r.Get("/status", h.GetStatus)
			r.Post("/process", h.Process)
			r.Post("/watch", h.Watch)
		})
	})

	return r
}

type fileResponse struct {
	URL        string    `json:"url"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type meetingResponse struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	File       *fileResponse      `json:"file,omitempty"`
	Processing *processing.Status `json:"processing,omitempty"`
	Tracking   bool               `json:"tracking"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func (h *MeetingHandler) toResponse(m storage.Meeting) meetingResponse {
	resp := meetingResponse{
		ID:        m.ID,
		Title:     m.Title,
		Tracking:  h.tracker.Tracking(m.ID),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}

	if m.HasFile() {
		resp.File = &fileResponse{
			URL:        h.cfg.MediaURL(m.ID),
			MimeType:   m.MimeType,
			SizeBytes:  m.FileSize,
			UploadedAt: m.UploadedAt,
		}
	}

	if m.ProcessingState != "" {
		status := storedStatus(m)
		resp.Processing = &status
	}

	return resp
}

func storedStatus(m storage.Meeting) processing.Status {
	return processing.Status{
		State:    processing.State(m.ProcessingState),
		Stage:    m.Stage,
		Progress: m.Progress,
		Error:    m.Error,
	}
}

// ListMeetings returns every meeting, newest first.
func (h *MeetingHandler) ListMeetings(w http.ResponseWriter, r *http.Request) {
	meetings, err := h.meetings.ListMeetings(r.Context())
	if err != nil {
		h.internalError(w, r, "failed to list meetings", err)

		return
	}

	resp := make([]meetingResponse, 0, len(meetings))
	for _, m := range meetings {
		resp = append(resp, h.toResponse(m))
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// CreateMeeting creates a meeting from {"title": "..."}.
func (h *MeetingHandler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req struct {
		Title string `json:"title"`
	}

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodySize)).Decode(&req); err != nil {
		logger.DebugContext(r.Context(), "failed to decode request", "err", err)
		writeError(w, r, http.StatusBadRequest, "invalid request body")

		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, r, http.StatusBadRequest, "title is required")

		return
	}

	m, err := h.meetings.CreateMeeting(r.Context(), req.Title)
	if err != nil {
		h.internalError(w, r, "failed to create meeting", err)

		return
	}

	logger.InfoContext(r.Context(), "meeting created", "meeting_id", m.ID)

	w.Header().Set("Location", "/meetings/"+m.ID)
	writeJSON(w, r, http.StatusCreated, h.toResponse(m))
}

func (h *MeetingHandler) GetMeeting(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMeeting(w, r)
	if !ok {
		return
	}

	writeJSON(w, r, http.StatusOK, h.toResponse(m))
}

// DeleteMeeting stops tracking, removes the media files and deletes the record.
func (h *MeetingHandler) DeleteMeeting(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMeeting(w, r)
	if !ok {
		return
	}

	h.tracker.Untrack(m.ID)

	if err := h.media.RemoveMeeting(m.ID); err != nil {
		h.internalError(w, r, "failed to remove media", err)

		return
	}

	if err := h.meetings.DeleteMeeting(r.Context(), m.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "meeting not found")

			return
		}

		h.internalError(w, r, "failed to delete meeting", err)

		return
	}

	logctx.LoggerFromContext(r.Context()).InfoContext(r.Context(), "meeting deleted", "meeting_id", m.ID)

	w.WriteHeader(http.StatusNoContent)
}

// UploadFile streams the multipart "file" field to the media store and attaches it
// to the meeting, replacing any previous file.
func (h *MeetingHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	m, ok := h.loadMeeting(w, r)
	if !ok {
		return
	}

	if h.cfg.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize+multipartOverhead)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		h.telemetry.RecordUpload(ctx, "rejected", 0)
		writeError(w, r, http.StatusBadRequest, "expected a multipart/form-data body")

		return
	}

	var desc media.Descriptor

	found := false

	for !found {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			h.uploadError(w, r, err)

			return
		}

		if part.FormName() != uploadFieldName || part.FileName() == "" {
			part.Close()

			continue
		}

		found = true
		desc, err = h.media.Save(ctx, m.ID, part.FileName(), 0, part)
		part.Close()

		if err != nil {
			h.uploadError(w, r, err)

			return
		}
	}

	if !found {
		h.telemetry.RecordUpload(ctx, "rejected", 0)
		writeError(w, r, http.StatusBadRequest, "missing multipart field \""+uploadFieldName+"\"")

		return
	}

	if err := h.meetings.AttachFile(ctx, m.ID, desc.Path, desc.Size, desc.MimeType); err != nil {
		_ = h.media.Remove(desc.Path)
		h.telemetry.RecordUpload(ctx, "error", 0)

		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "meeting not found")

			return
		}

		h.internalError(w, r, "failed to attach media file", err)

		return
	}

	// the new file resets processing, so any poller of the old one is obsolete
	h.tracker.Untrack(m.ID)

	if m.HasFile() && m.FilePath != desc.Path {
		if err := h.media.Remove(m.FilePath); err != nil {
			logger.WarnContext(ctx, "failed to remove replaced media file", "meeting_id", m.ID, "err", err)
		}
	}

	h.telemetry.RecordUpload(ctx, "success", desc.Size)

	updated, err := h.meetings.GetMeeting(ctx, m.ID)
	if err != nil {
		h.internalError(w, r, "failed to load meeting", err)

		return
	}

	writeJSON(w, r, http.StatusCreated, h.toResponse(updated))
}

func (h *MeetingHandler) uploadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.Is(err, media.ErrUnsupportedMediaType):
		h.telemetry.RecordUpload(r.Context(), "rejected", 0)
		writeError(w, r, http.StatusUnsupportedMediaType, "unsupported media type, expected one of "+strings.Join(media.Extensions(), ", "))
	case errors.Is(err, media.ErrTooLarge), errors.As(err, &maxBytesErr):
		h.telemetry.RecordUpload(r.Context(), "rejected", 0)
		writeError(w, r, http.StatusRequestEntityTooLarge, "media file too large")
	default:
		h.telemetry.RecordUpload(r.Context(), "error", 0)
		h.internalError(w, r, "failed to store media file", err)
	}
}

// ServeFile serves the meeting media with range support.
func (h *MeetingHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	m, err := h.meetings.GetMeeting(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.telemetry.RecordMediaRequest(r.Context(), "not_found", 0)
			http.Error(w, "meeting not found", http.StatusNotFound)

			return
		}

		h.internalError(w, r, "failed to load meeting", err)

		return
	}

	h.files.Serve(w, r, m.FilePath)
}

// GetStatus proxies the backend status of a submitted meeting. Terminal states are
// answered from the store.
func (h *MeetingHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	m, ok := h.loadMeeting(w, r)
	if !ok {
		return
	}

	if m.ProcessingState == "" {
		writeError(w, r, http.StatusNotFound, "processing not started")

		return
	}

	stored := storedStatus(m)
	if stored.IsTerminal() {
		writeJSON(w, r, http.StatusOK, stored)

		return
	}

	status, err := h.status.GetStatus(ctx, m.ID)
	if err != nil {
		h.backendError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, status)
}

// Process submits the meeting media to the backend and starts tracking it.
func (h *MeetingHandler) Process(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	m, ok := h.loadMeeting(w, r)
	if !ok {
		return
	}

	if !m.HasFile() {
		writeError(w, r, http.StatusConflict, "meeting has no media file")

		return
	}

	desc, err := media.Describe(m.FilePath)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			writeError(w, r, http.StatusConflict, "media file is no longer available")

			return
		}

		h.internalError(w, r, "failed to resolve media file", err)

		return
	}

	job := processing.Job{
		MeetingID: m.ID,
		MediaURL:  h.cfg.MediaURL(m.ID),
		MimeType:  desc.MimeType,
		SizeBytes: desc.Size,
	}

	if err := h.tracker.Process(ctx, job); err != nil {
		if errors.Is(err, processing.ErrTrackerClosed) {
			writeError(w, r, http.StatusServiceUnavailable, "shutting down")

			return
		}

		h.backendError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusAccepted, processing.Status{State: processing.StateQueued})
}

// Watch restarts status tracking of a submitted meeting, for instance after a
// transport error stopped its poller.
func (h *MeetingHandler) Watch(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMeeting(w, r)
	if !ok {
		return
	}

	if m.ProcessingState == "" {
		writeError(w, r, http.StatusConflict, "processing not started")

		return
	}

	if err := h.tracker.Track(r.Context(), m.ID); err != nil {
		if errors.Is(err, processing.ErrTrackerClosed) {
			writeError(w, r, http.StatusServiceUnavailable, "shutting down")

			return
		}

		h.internalError(w, r, "failed to track meeting", err)

		return
	}

	writeJSON(w, r, http.StatusAccepted, h.toResponse(m))
}

func (h *MeetingHandler) loadMeeting(w http.ResponseWriter, r *http.Request) (storage.Meeting, bool) {
	m, err := h.meetings.GetMeeting(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "meeting not found")

			return storage.Meeting{}, false
		}

		h.internalError(w, r, "failed to load meeting", err)

		return storage.Meeting{}, false
	}

	return m, true
}

// backendError maps processing client errors to gateway responses.
func (h *MeetingHandler) backendError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logctx.LoggerFromContext(r.Context())

	var (
		netErr  *processing.NetworkError
		authErr *processing.AuthenticationError
	)

	switch {
	case errors.Is(err, processing.ErrJobNotFound):
		writeError(w, r, http.StatusNotFound, "processing job not found")
	case errors.As(err, &authErr):
		logger.ErrorContext(r.Context(), "backend rejected credentials", "err", err)
		writeError(w, r, http.StatusBadGateway, "backend authentication failed")
	case errors.As(err, &netErr):
		logger.WarnContext(r.Context(), "backend request failed", "err", err)
		writeError(w, r, http.StatusBadGateway, netErr.APIMessage)
	default:
		h.internalError(w, r, "backend request failed", err)
	}
}

func (h *MeetingHandler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), msg, "err", err)
	h.telemetry.RecordSystemError(r.Context(), "rest", "internal")
	writeError(w, r, http.StatusInternalServerError, msg)
}

func (h *MeetingHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="media_gateway"`)
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.cfg.Username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(h.cfg.Password)) == 1

		if !userOK || !passOK {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}
