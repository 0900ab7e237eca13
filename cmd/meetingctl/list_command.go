package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/meetingdesk/media_gateway/internal/processing"
	"github.com/spf13/cobra"
)

type meetingSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	File  *struct {
		MimeType  string `json:"mime_type"`
		SizeBytes int64  `json:"size_bytes"`
	} `json:"file"`
	Processing *processing.Status `json:"processing"`
	Tracking   bool               `json:"tracking"`
	CreatedAt  time.Time          `json:"created_at"`
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List meetings known to the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, ctx.url("/meetings"), nil)
			if err != nil {
				return err
			}

			resp, err := ctx.httpClient(ctx.timeout).Do(req)
			if err != nil {
				return fmt.Errorf("list meetings: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return gatewayError(resp)
			}

			var meetings []meetingSummary
			if err := json.NewDecoder(resp.Body).Decode(&meetings); err != nil {
				return fmt.Errorf("decode meetings: %w", err)
			}

			out := cmd.OutOrStdout()

			if len(meetings) == 0 {
				fmt.Fprintln(out, "No meetings")

				return nil
			}

			rows := make([][]string, 0, len(meetings))
			for _, m := range meetings {
				rows = append(rows, meetingRow(m))
			}

			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Title", "Media", "Size", "Status", "Progress", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
			))

			return nil
		},
	}
}

func meetingRow(m meetingSummary) []string {
	media, size := "-", "-"
	if m.File != nil {
		media = m.File.MimeType
		size = humanize.Bytes(uint64(m.File.SizeBytes))
	}

	status, progress := "-", "-"
	if m.Processing != nil {
		status = string(m.Processing.State)
		if m.Processing.Stage != "" {
			status += " (" + m.Processing.Stage + ")"
		}

		if m.Tracking {
			status += " *"
		}

		progress = fmt.Sprintf("%d%%", m.Processing.Progress)
	}

	return []string{m.ID, m.Title, media, size, status, progress, humanize.Time(m.CreatedAt)}
}
