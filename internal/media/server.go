package media

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"

	"github.com/meetingdesk/media_gateway/internal/logctx"
	"github.com/meetingdesk/media_gateway/internal/telemetry"
)

// FileServer answers GET and HEAD requests for media files, honouring single
// byte ranges.
type FileServer struct {
	telemetry *telemetry.Telemetry
}

func NewFileServer(tel *telemetry.Telemetry) *FileServer {
	return &FileServer{telemetry: tel}
}

// Serve resolves path and serves it. A missing file answers 404.
func (s *FileServer) Serve(w http.ResponseWriter, r *http.Request, path string) {
	desc, err := Describe(path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.notFound(w, r)

			return
		}

		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to resolve media file", "path", path, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

		return
	}

	s.ServeFile(w, r, desc)
}

// ServeFile streams desc: 200 with the whole file when there is no Range header
// (or several ranges), 206 with the requested slice, 416 for a range that cannot
// be satisfied. The file handle is opened here and closed when the response ends.
func (s *FileServer) ServeFile(w http.ResponseWriter, r *http.Request, desc Descriptor) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx).With("path", desc.Path)

	f, err := os.Open(desc.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.notFound(w, r)

			return
		}

		logger.ErrorContext(ctx, "failed to open media file", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

		return
	}
	defer f.Close()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")

	rng := ByteRange{Start: 0, End: desc.Size - 1}
	status, kind := http.StatusOK, "full"

	if header := r.Header.Get("Range"); header != "" {
		parsed, err := ParseRange(header, desc.Size)

		switch {
		case err == nil:
			rng = parsed
			status, kind = http.StatusPartialContent, "range"
		case errors.Is(err, ErrMultipleRanges):
			logger.DebugContext(ctx, "serving full file for multi-range request", "range", header)
		default:
			logger.DebugContext(ctx, "range not satisfiable", "range", header, "err", err)
			s.telemetry.RecordMediaRequest(ctx, "invalid_range", 0)

			h.Set("Content-Range", UnsatisfiedContentRange(desc.Size))
			http.Error(w, http.StatusText(http.StatusRequestedRangeNotSatisfiable), http.StatusRequestedRangeNotSatisfiable)

			return
		}
	}

	length := rng.Length()

	h.Set("Content-Type", desc.MimeType)
	h.Set("Content-Length", strconv.FormatInt(length, 10))

	if status == http.StatusPartialContent {
		h.Set("Content-Range", rng.ContentRange(desc.Size))
	}

	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		s.telemetry.RecordMediaRequest(ctx, kind, 0)

		return
	}

	n, err := io.CopyN(w, io.NewSectionReader(f, rng.Start, length), length)
	s.telemetry.RecordMediaRequest(ctx, kind, n)

	if err != nil {
		// headers are already on the wire; the only option left is to cut the body short
		if ctx.Err() != nil {
			logger.DebugContext(ctx, "client closed connection while streaming", "written", n)

			return
		}

		logger.WarnContext(ctx, "failed to stream media file", "written", n, "expected", length, "err", err)
	}
}

func (s *FileServer) notFound(w http.ResponseWriter, r *http.Request) {
	s.telemetry.RecordMediaRequest(r.Context(), "not_found", 0)
	http.Error(w, "media file not found", http.StatusNotFound)
}
