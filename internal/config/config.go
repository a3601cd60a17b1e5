package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the capture companion service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	// CaptureDevice selects the camera/microphone backend: auto | mock | staged.
	CaptureDevice string
	// MediaDir holds fixture media served by the staged device backend.
	MediaDir string
	// CacheDir is the volatile location for recordings and package dirs.
	CacheDir string

	MaxImageWidth int
	JPEGQuality   int

	UploadAPIURL      string
	UploadBearerToken string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "snapjournal"),
		AllowAnyOrigin:           false,
		CaptureDevice:            envOrDefault("CAPTURE_DEVICE", "auto"),
		MediaDir:                 envOrDefault("CAPTURE_MEDIA_DIR", "media"),
		CacheDir:                 envOrDefault("CAPTURE_CACHE_DIR", filepath.Join(os.TempDir(), "snapjournal")),
		MaxImageWidth:            1280,
		JPEGQuality:              80,
		UploadAPIURL:             envTrimmed("UPLOAD_API_URL"),
		UploadBearerToken:        envTrimmed("UPLOAD_BEARER_TOKEN"),
		DatabaseURL:              envTrimmed("DATABASE_URL"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 5 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxImageWidth, err = intFromEnv("CAPTURE_MAX_IMAGE_WIDTH", cfg.MaxImageWidth)
	if err != nil {
		return Config{}, err
	}
	cfg.JPEGQuality, err = intFromEnv("CAPTURE_JPEG_QUALITY", cfg.JPEGQuality)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxImageWidth <= 0 {
		return Config{}, fmt.Errorf("CAPTURE_MAX_IMAGE_WIDTH must be positive, got %d", cfg.MaxImageWidth)
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		return Config{}, fmt.Errorf("CAPTURE_JPEG_QUALITY must be within 1..100, got %d", cfg.JPEGQuality)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := envTrimmed(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
