package main

import (
	"errors"
	"fmt"

	"github.com/meetingdesk/media_gateway/internal/processing"
	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <meeting-id>",
		Short: "Show the processing status of a meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.statusClient().GetStatus(cmd.Context(), args[0])
			if err != nil {
				return describeStatusError(args[0], err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Field", "Value"},
				statusRows(status),
				[]columnAlignment{alignLeft, alignLeft},
			))

			return nil
		},
	}
}

func statusRows(s processing.Status) [][]string {
	rows := [][]string{
		{"Status", string(s.State)},
		{"Stage", valueOrDash(s.Stage)},
		{"Progress", fmt.Sprintf("%d%%", s.Progress)},
	}

	if s.Error != "" {
		rows = append(rows, []string{"Error", s.Error})
	}

	return rows
}

func describeStatusError(meetingID string, err error) error {
	var authErr *processing.AuthenticationError

	switch {
	case errors.Is(err, processing.ErrJobNotFound):
		return fmt.Errorf("meeting %s: unknown meeting or processing not started", meetingID)
	case errors.As(err, &authErr):
		return fmt.Errorf("gateway rejected the credentials, check --user and --password: %w", err)
	default:
		return err
	}
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
