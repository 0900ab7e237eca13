package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	MediaDir      string        `envconfig:"MEDIA_DIR" required:"true"`
	DBPath        string        `envconfig:"DB_PATH" default:"meetings.db"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"INFO"`
	PublicURL     string        `envconfig:"PUBLIC_URL" default:"http://localhost:9092"`
	MaxUploadSize int64         `envconfig:"MAX_UPLOAD_SIZE" default:"4294967296"`
	MaxParallel   int           `envconfig:"MAX_PARALLEL" default:"5"`
	KeepMediaFor  time.Duration `envconfig:"KEEP_MEDIA_FOR" default:"720h"`

	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`

	Backend struct {
		URL          string        `split_words:"true" default:"http://localhost:8000"`
		Token        string        `split_words:"true"`
		Timeout      time.Duration `split_words:"true" default:"30s"`
		PollInterval time.Duration `split_words:"true" default:"2s"`
		SettleDelay  time.Duration `split_words:"true" default:"500ms"`
	}

	API struct {
		Username string `split_words:"true"`
		Password string `split_words:"true"`
	}

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"media_gateway"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9092"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"0s"`
		IdleTimeout     time.Duration `split_words:"true" default:"60s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads an optional .env file and then populates the Config struct
// from the environment. Variables already present in the environment win over
// the ones in the file.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MediaURL returns the public URL the processing backend uses to fetch the media of a meeting.
func (c *Config) MediaURL(meetingID string) string {
	return strings.TrimRight(c.PublicURL, "/") + "/meetings/" + meetingID + "/file"
}
