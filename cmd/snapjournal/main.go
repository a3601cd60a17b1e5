package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/avitale/snapjournal/internal/capture"
	"github.com/avitale/snapjournal/internal/config"
	"github.com/avitale/snapjournal/internal/history"
	"github.com/avitale/snapjournal/internal/httpapi"
	"github.com/avitale/snapjournal/internal/observability"
	"github.com/avitale/snapjournal/internal/recorder"
	"github.com/avitale/snapjournal/internal/stitch"
	"github.com/avitale/snapjournal/internal/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	historyStore, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("history store init failed: %v", err)
	}
	defer historyStore.Close()

	var (
		mic recorder.Microphone
		cam recorder.Camera
	)

	deviceMode := strings.ToLower(strings.TrimSpace(cfg.CaptureDevice))
	if deviceMode == "" {
		deviceMode = "auto"
	}

	tryStaged := func(fatal bool) bool {
		mediaDir := strings.TrimSpace(cfg.MediaDir)
		if mediaDir == "" {
			if fatal {
				log.Fatalf("CAPTURE_DEVICE=staged but CAPTURE_MEDIA_DIR is not set")
			}
			return false
		}
		if _, err := os.Stat(filepath.Join(mediaDir, "photo.jpg")); err != nil {
			if fatal {
				log.Fatalf("staged media dir %s is missing photo.jpg: %v", mediaDir, err)
			}
			log.Printf("staged capture unavailable: %v", err)
			return false
		}
		mic = &recorder.StagedMicrophone{MediaDir: mediaDir}
		cam = &recorder.StagedCamera{MediaDir: mediaDir}
		log.Printf("capture device: staged (media from %s)", mediaDir)
		return true
	}

	switch deviceMode {
	case "staged":
		_ = tryStaged(true)
	case "mock":
		mic = &recorder.MockMicrophone{}
		cam = &recorder.MockCamera{}
		log.Printf("capture device: mock")
	case "auto":
		if !tryStaged(false) {
			mic = &recorder.MockMicrophone{}
			cam = &recorder.MockCamera{}
			log.Printf("capture device: mock (no staged media available)")
		}
	default:
		log.Fatalf("invalid CAPTURE_DEVICE: %q (expected auto|staged|mock)", cfg.CaptureDevice)
	}
	cfg.CaptureDevice = deviceMode

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		log.Fatalf("cache dir init failed: %v", err)
	}

	uploader := upload.NewUploader(cfg.UploadAPIURL, upload.StaticToken(cfg.UploadBearerToken))
	packager := stitch.NewPackager(cfg.CacheDir, cfg.MaxImageWidth, cfg.JPEGQuality)

	captures := capture.NewManager(capture.Deps{
		Camera:            cam,
		Microphone:        mic,
		Packager:          packager,
		Uploader:          uploader,
		History:           historyStore,
		Metrics:           metrics,
		CacheDir:          cfg.CacheDir,
		InactivityTimeout: cfg.SessionInactivityTimeout,
	})

	api := httpapi.New(cfg, captures, historyStore, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	captures.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
