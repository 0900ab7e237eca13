package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/meetingdesk/media_gateway/internal/cleanup"
	"github.com/meetingdesk/media_gateway/internal/config"
	"github.com/meetingdesk/media_gateway/internal/http/rest"
	"github.com/meetingdesk/media_gateway/internal/logctx"
	"github.com/meetingdesk/media_gateway/internal/media"
	"github.com/meetingdesk/media_gateway/internal/notifier"
	"github.com/meetingdesk/media_gateway/internal/processing"
	"github.com/meetingdesk/media_gateway/internal/storage/sqlite"
	"github.com/meetingdesk/media_gateway/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewContextHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("media gateway starting...", "version", version, "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	meetings := sqlite.NewInstrumentedMeetingRepository(database, tel)

	// =========================================================================
	// Start Processing Backend
	backend := processing.NewInstrumentedBackend(
		processing.NewClient(cfg.Backend.URL, cfg.Backend.Token, processing.WithTimeout(cfg.Backend.Timeout)),
		tel,
		"processing_backend",
	)

	tracker := processing.NewTracker(
		backend,
		meetings,
		buildNotifier(cfg),
		tel,
		processing.WithMaxParallel(cfg.MaxParallel),
		processing.WithPollerOptions(
			processing.WithInterval(cfg.Backend.PollInterval),
			processing.WithSettleDelay(cfg.Backend.SettleDelay),
		),
	)
	defer tracker.Close()

	if err := tracker.Resume(ctx); err != nil {
		logger.Error("failed to resume tracking of unfinished meetings", "err", err)
	}

	// =========================================================================
	// Start Media Store
	if err := os.MkdirAll(cfg.MediaDir, 0o755); err != nil {
		return fmt.Errorf("failed to create media dir: %w", err)
	}

	store := media.NewStore(cfg.MediaDir, cfg.MaxUploadSize)

	// =========================================================================
	// Start Cleanup
	go cleanup.Run(ctx, meetings, store, cfg.CleanupInterval, cfg.KeepMediaFor)

	// =========================================================================
	// Start API Service
	handler := rest.NewMeetingHandler(
		rest.MeetingHandlerConfig{
			Username:      cfg.API.Username,
			Password:      cfg.API.Password,
			MaxUploadSize: cfg.MaxUploadSize,
			MediaURL:      cfg.MediaURL,
		},
		meetings,
		store,
		media.NewFileServer(tel),
		backend,
		tracker,
		tel,
	)

	server := setupServer(ctx, cfg, tel, handler)

	logger.Info("waiting for meetings...",
		"media_dir", cfg.MediaDir,
		"backend_url", cfg.Backend.URL,
		"poll_interval", cfg.Backend.PollInterval.String(),
		"retention", cfg.KeepMediaFor.String(),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	return g.Wait()
}

func buildNotifier(cfg *config.Config) notifier.Notifier {
	if cfg.DiscordWebhookURL == "" {
		return notifier.Nop{}
	}

	return notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)
}

// setupServer prepares the handlers and middlewares to create the http rest server.
func setupServer(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, handler *rest.MeetingHandler) *http.Server {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", tel.Handler())
	r.Mount("/", handler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
