package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/meetingdesk/media_gateway/internal/logctx"
	"github.com/meetingdesk/media_gateway/internal/media/progress"
	"github.com/spf13/cobra"
)

const progressInterval = 8 << 20 // 8MB

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var (
		output string
		resume bool
	)

	cmd := &cobra.Command{
		Use:   "download <meeting-id>",
		Short: "Download the media file of a meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return errors.New("--output is required")
			}

			written, err := ctx.download(cmd, args[0], output, resume)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "saved %s to %s\n", humanize.Bytes(uint64(written)), output)

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file")
	cmd.Flags().BoolVar(&resume, "resume", false, "Continue a partial download with a range request")

	return cmd
}

// download writes the meeting media to output and returns the size of the
// resulting file.
func (c *commandContext) download(cmd *cobra.Command, meetingID, output string, resume bool) (int64, error) {
	ctx := cmd.Context()
	logger := logctx.LoggerFromContext(ctx).With("meeting_id", meetingID)

	var offset int64

	if resume {
		info, err := os.Stat(output)

		switch {
		case err == nil:
			offset = info.Size()
		case !errors.Is(err, fs.ErrNotExist):
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/meetings/"+url.PathEscape(meetingID)+"/file"), nil)
	if err != nil {
		return 0, err
	}

	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.httpClient(0).Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", meetingID, err)
	}
	defer resp.Body.Close()

	var flags int

	switch resp.StatusCode {
	case http.StatusOK:
		// full body, whatever was there before is replaced
		offset = 0
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	case http.StatusPartialContent:
		start, err := contentRangeStart(resp.Header.Get("Content-Range"))
		if err != nil || start != offset {
			return 0, fmt.Errorf("unexpected Content-Range %q for offset %d", resp.Header.Get("Content-Range"), offset)
		}

		flags = os.O_WRONLY | os.O_APPEND
	case http.StatusRequestedRangeNotSatisfiable:
		size, err := unsatisfiedRangeSize(resp.Header.Get("Content-Range"))
		if err == nil && size == offset {
			logger.InfoContext(ctx, "file already complete", "size", humanize.Bytes(uint64(size)))

			return offset, nil
		}

		return 0, fmt.Errorf("local file %s (%d bytes) does not match the remote media", output, offset)
	case http.StatusNotFound:
		return 0, fmt.Errorf("meeting %s has no media file", meetingID)
	default:
		return 0, gatewayError(resp)
	}

	f, err := os.OpenFile(output, flags, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	total := resp.ContentLength

	pr := progress.NewReader(resp.Body, total, progressInterval, func(read, total int64) {
		attrs := []any{"downloaded", humanize.Bytes(uint64(offset + read))}
		if total > 0 {
			attrs = append(attrs, "total", humanize.Bytes(uint64(offset+total)), "percent", fmt.Sprintf("%.1f", float64(read)*100/float64(total)))
		}

		logger.InfoContext(ctx, "download progress", attrs...)
	})

	n, err := io.Copy(f, pr)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", meetingID, err)
	}

	if total >= 0 && n != total {
		return 0, fmt.Errorf("download %s: short body, got %d of %d bytes", meetingID, n, total)
	}

	return offset + n, f.Close()
}

// contentRangeStart returns the first byte of "bytes start-end/size".
func contentRangeStart(header string) (int64, error) {
	rangeSet, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", header)
	}

	start, _, ok := strings.Cut(rangeSet, "-")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", header)
	}

	return strconv.ParseInt(start, 10, 64)
}

// unsatisfiedRangeSize returns the size of "bytes */size".
func unsatisfiedRangeSize(header string) (int64, error) {
	size, ok := strings.CutPrefix(header, "bytes */")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", header)
	}

	return strconv.ParseInt(size, 10, 64)
}
