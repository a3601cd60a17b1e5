package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.CaptureDevice != "auto" {
		t.Fatalf("CaptureDevice = %q, want %q", cfg.CaptureDevice, "auto")
	}
	if cfg.MaxImageWidth != 1280 {
		t.Fatalf("MaxImageWidth = %d, want 1280", cfg.MaxImageWidth)
	}
	if cfg.JPEGQuality != 80 {
		t.Fatalf("JPEGQuality = %d, want 80", cfg.JPEGQuality)
	}
	if cfg.UploadAPIURL != "" {
		t.Fatalf("UploadAPIURL = %q, want empty default", cfg.UploadAPIURL)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("CAPTURE_DEVICE", "staged")
	t.Setenv("UPLOAD_API_URL", "http://localhost:7777/api")
	t.Setenv("CAPTURE_MAX_IMAGE_WIDTH", "640")
	t.Setenv("APP_SESSION_INACTIVITY_TIMEOUT", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.CaptureDevice != "staged" {
		t.Fatalf("CaptureDevice = %q, want %q", cfg.CaptureDevice, "staged")
	}
	if cfg.UploadAPIURL != "http://localhost:7777/api" {
		t.Fatalf("UploadAPIURL = %q, want explicit value", cfg.UploadAPIURL)
	}
	if cfg.MaxImageWidth != 640 {
		t.Fatalf("MaxImageWidth = %d, want 640", cfg.MaxImageWidth)
	}
	if got := cfg.SessionInactivityTimeout.Seconds(); got != 90 {
		t.Fatalf("SessionInactivityTimeout = %vs, want 90s", got)
	}
}

func TestLoadRejectsBadQuality(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("CAPTURE_JPEG_QUALITY", "0")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() with quality 0 should fail")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"CAPTURE_DEVICE",
		"CAPTURE_MEDIA_DIR",
		"CAPTURE_CACHE_DIR",
		"CAPTURE_MAX_IMAGE_WIDTH",
		"CAPTURE_JPEG_QUALITY",
		"UPLOAD_API_URL",
		"UPLOAD_BEARER_TOKEN",
		"DATABASE_URL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
