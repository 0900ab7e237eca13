package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/meetingdesk/media_gateway/internal/logctx"
	"github.com/meetingdesk/media_gateway/internal/processing"
	"github.com/spf13/cobra"
)

const defaultGatewayURL = "http://localhost:9092"

type commandContext struct {
	gateway  string
	username string
	password string
	timeout  time.Duration
	verbose  bool
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "meetingctl",
		Short:         "Command line client for the meeting media gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if ctx.verbose {
				level = slog.LevelDebug
			}

			logger := slog.New(logctx.NewContextHandler(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			cmd.SetContext(logctx.WithLogger(cmd.Context(), logger))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.gateway, "gateway", envOr("MEETINGCTL_GATEWAY", defaultGatewayURL), "Base URL of the media gateway")
	flags.StringVar(&ctx.username, "user", os.Getenv("MEETINGCTL_USER"), "Basic auth username")
	flags.StringVar(&ctx.password, "password", os.Getenv("MEETINGCTL_PASSWORD"), "Basic auth password")
	flags.DurationVar(&ctx.timeout, "timeout", 30*time.Second, "Timeout of a single API request")
	flags.BoolVarP(&ctx.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newDownloadCommand(ctx))

	return rootCmd
}

// httpClient returns a client authenticating against the gateway. A zero timeout
// disables the deadline, which downloads rely on.
func (c *commandContext) httpClient(timeout time.Duration) *http.Client {
	var transport http.RoundTripper = http.DefaultTransport

	if c.username != "" || c.password != "" {
		transport = &basicAuthTransport{username: c.username, password: c.password, base: transport}
	}

	return &http.Client{Transport: transport, Timeout: timeout}
}

// statusClient reuses the backend status client: the gateway exposes the same payload.
func (c *commandContext) statusClient() *processing.Client {
	return processing.NewClient(c.gateway, "", processing.WithHTTPClient(c.httpClient(c.timeout)))
}

func (c *commandContext) url(path string) string {
	return strings.TrimRight(c.gateway, "/") + path
}

type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)

	return t.base.RoundTrip(req)
}

// gatewayError turns a non-2xx gateway answer into an error carrying its message.
func gatewayError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error string `json:"error"`
	}

	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}

	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, msg)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
