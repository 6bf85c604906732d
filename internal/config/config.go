// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/recitation-api/internal/connectivity"
	"github.com/maauso/recitation-api/internal/store"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1..65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidStoreBackend is returned for an unknown STORE_BACKEND.
	ErrInvalidStoreBackend = errors.New("config: STORE_BACKEND must be sqlite, badger or memory")
	// ErrInvalidConnectivityMode is returned for an unknown CONNECTIVITY_MODE.
	ErrInvalidConnectivityMode = errors.New("config: CONNECTIVITY_MODE must be probe, online or offline")
	// ErrAudioBaseURLRequired is returned when AUDIO_BASE_URL is empty.
	ErrAudioBaseURLRequired = errors.New("config: AUDIO_BASE_URL is required")
	// ErrInvalidFetchTimeout is returned when FETCH_TIMEOUT is not positive.
	ErrInvalidFetchTimeout = errors.New("config: FETCH_TIMEOUT must be positive")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Remote audio source
	AudioBaseURL     string        `env:"AUDIO_BASE_URL, default=https://raw.githubusercontent.com/brmhmh/yacineee/refs/heads/upup/" json:"audio_base_url"`
	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT, default=30s" json:"fetch_timeout"`
	ConnectivityMode string        `env:"CONNECTIVITY_MODE, default=probe" json:"connectivity_mode"` // "probe", "online" or "offline"
	ProbeTimeout     time.Duration `env:"PROBE_TIMEOUT, default=3s" json:"probe_timeout"`

	// Chapter and verse metadata
	CatalogPath string `env:"CATALOG_PATH, default=./assets/quran.sqlite" json:"catalog_path"`

	// Unit cache
	StoreBackend string `env:"STORE_BACKEND, default=sqlite" json:"store_backend"` // "sqlite", "badger" or "memory"
	StorePath    string `env:"STORE_PATH, default=/var/lib/recitation/cache" json:"store_path"`

	// Segment export
	OutputDir string `env:"OUTPUT_DIR, default=/tmp/recitation" json:"output_dir"`

	// Decoding
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from the process environment and validates it.
func Load() (*Config, error) {
	return LoadWith(context.Background(), envconfig.OsLookuper())
}

// LoadWith reads configuration from l and validates it.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if !store.Backend(c.StoreBackend).IsValid() {
		return fmt.Errorf("%w: got %q", ErrInvalidStoreBackend, c.StoreBackend)
	}
	if !connectivity.Mode(c.ConnectivityMode).IsValid() {
		return fmt.Errorf("%w: got %q", ErrInvalidConnectivityMode, c.ConnectivityMode)
	}
	if strings.TrimSpace(c.AudioBaseURL) == "" {
		return ErrAudioBaseURLRequired
	}
	if c.FetchTimeout <= 0 {
		return ErrInvalidFetchTimeout
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, AudioBaseURL: %s, FetchTimeout: %s, ConnectivityMode: %s, CatalogPath: %s, StoreBackend: %s, StorePath: %s, OutputDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.AudioBaseURL,
		c.FetchTimeout,
		c.ConnectivityMode,
		c.CatalogPath,
		c.StoreBackend,
		c.StorePath,
		c.OutputDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
