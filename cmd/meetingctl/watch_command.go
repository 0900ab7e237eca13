package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/meetingdesk/media_gateway/internal/processing"
	"github.com/spf13/cobra"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		interval time.Duration
		settle   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <meeting-id>",
		Short: "Follow the processing status of a meeting until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meetingID := args[0]
			out := newProgressLine(cmd.OutOrStdout())

			var (
				mu      sync.Mutex
				lastErr error
			)

			poller := processing.NewPoller(ctx.statusClient(), meetingID, processing.Callbacks{
				OnStatusUpdate: func(s processing.Status) {
					out.update(formatStatus(s))
				},
				OnComplete: func(processing.Status) {
					out.finish("processing completed")
				},
				OnError: func(err error) {
					mu.Lock()
					lastErr = err
					mu.Unlock()

					out.finish("")
				},
			}, processing.WithInterval(interval), processing.WithSettleDelay(settle))

			if err := poller.Start(cmd.Context()); err != nil {
				return err
			}

			poller.Wait()

			mu.Lock()
			defer mu.Unlock()

			switch poller.State() {
			case processing.PollerCompleted:
				return nil
			case processing.PollerFailed:
				return lastErr
			case processing.PollerErrored:
				return describeStatusError(meetingID, lastErr)
			default:
				out.finish("")

				return cmd.Context().Err()
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", processing.DefaultPollInterval, "Delay between status queries")
	cmd.Flags().DurationVar(&settle, "settle", processing.DefaultSettleDelay, "Delay between the completed status and the final report")

	return cmd
}

func formatStatus(s processing.Status) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%-10s %3d%%", s.State, s.Progress)

	if s.Stage != "" {
		b.WriteString("  " + s.Stage)
	}

	return b.String()
}

// progressLine rewrites a single line in place on terminals and prints one line
// per update otherwise.
type progressLine struct {
	w       io.Writer
	inPlace bool
	width   int
	open    bool
}

func newProgressLine(w io.Writer) *progressLine {
	return &progressLine{w: w, inPlace: isTerminal(w)}
}

func (p *progressLine) update(line string) {
	if !p.inPlace {
		fmt.Fprintln(p.w, line)

		return
	}

	pad := ""
	if n := p.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}

	fmt.Fprint(p.w, "\r"+line+pad)

	p.width = len(line)
	p.open = true
}

func (p *progressLine) finish(line string) {
	if p.open {
		fmt.Fprintln(p.w)
		p.open = false
	}

	if line != "" {
		fmt.Fprintln(p.w, line)
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}

	fd := file.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
