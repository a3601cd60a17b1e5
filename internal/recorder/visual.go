package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// VisualRecorder drives camera capture for one session. Exactly one photo
// snapshot or video recording may be in flight at a time.
type VisualRecorder struct {
	camera       Camera
	destDir      string
	tickInterval time.Duration
	onTick       func(int)

	mu      sync.Mutex
	capture VisualCapture
	ticker  *durationTicker
}

func NewVisualRecorder(camera Camera, destDir string, tickInterval time.Duration, onTick func(int)) *VisualRecorder {
	if tickInterval <= 0 {
		tickInterval = TickInterval
	}
	return &VisualRecorder{
		camera:       camera,
		destDir:      destDir,
		tickInterval: tickInterval,
		onTick:       onTick,
	}
}

// CapturePhoto acquires the camera, takes a single still and releases the
// handle before returning.
func (r *VisualRecorder) CapturePhoto(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.capture != nil {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: visual capture already active", ErrRecordingStart)
	}
	r.mu.Unlock()

	capture, err := r.camera.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrRecordingStart, err)
	}
	defer capture.Release()

	path, err := capture.Snapshot(ctx, r.destDir)
	if err != nil {
		return "", fmt.Errorf("take photo: %w", err)
	}
	return path, nil
}

// StartVideo acquires the camera and begins continuous capture, counting
// elapsed ticks for UI feedback.
func (r *VisualRecorder) StartVideo(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture != nil {
		return fmt.Errorf("%w: visual capture already active", ErrRecordingStart)
	}

	capture, err := r.camera.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrRecordingStart, err)
	}
	if err := capture.BeginVideo(ctx); err != nil {
		_ = capture.Release()
		return fmt.Errorf("%w: %v", ErrRecordingStart, err)
	}

	r.capture = capture
	r.ticker = startDurationTicker(r.tickInterval, r.onTick)
	return nil
}

// StopVideo ends continuous capture and returns the video path plus the
// elapsed duration. Stopping with no recording in progress is a no-op.
func (r *VisualRecorder) StopVideo(ctx context.Context) (string, time.Duration, error) {
	r.mu.Lock()
	capture := r.capture
	ticker := r.ticker
	r.capture = nil
	r.ticker = nil
	r.mu.Unlock()

	if capture == nil {
		return "", 0, nil
	}

	ticks := ticker.Stop()
	elapsed := time.Duration(ticks) * r.tickInterval

	path, err := capture.EndVideo(ctx, r.destDir)
	if err != nil {
		_ = capture.Release()
		return "", elapsed, fmt.Errorf("finalize video recording: %w", err)
	}
	_ = capture.Release()
	return path, elapsed, nil
}

func (r *VisualRecorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capture != nil
}

func (r *VisualRecorder) ElapsedTicks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticker == nil {
		return 0
	}
	return r.ticker.Ticks()
}

// Teardown releases the camera and cancels the ticker without finalizing.
func (r *VisualRecorder) Teardown() {
	r.mu.Lock()
	capture := r.capture
	ticker := r.ticker
	r.capture = nil
	r.ticker = nil
	r.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
	}
	if capture != nil {
		_ = capture.Release()
	}
}
