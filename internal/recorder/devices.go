package recorder

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied means the user has not granted camera or
	// microphone access; recording states must not be entered at all.
	ErrPermissionDenied = errors.New("capture permission denied")

	// ErrDeviceBusy means the hardware handle is held elsewhere.
	ErrDeviceBusy = errors.New("capture device busy")

	// ErrRecordingStart wraps any failure to begin a recording.
	ErrRecordingStart = errors.New("recording start failed")
)

// Microphone acquires the device microphone for one recording at a time.
type Microphone interface {
	Acquire(ctx context.Context) (AudioCapture, error)
}

// AudioCapture is a live microphone recording. Finish finalizes the clip
// under destDir, releases the hardware handle and returns the written path.
// Release abandons the recording and frees the handle without finalizing.
type AudioCapture interface {
	Finish(ctx context.Context, destDir string) (string, error)
	Release() error
}

// Camera acquires the device camera for one capture at a time.
type Camera interface {
	Acquire(ctx context.Context) (VisualCapture, error)
}

// VisualCapture is an acquired camera handle. Exactly one of Snapshot or a
// BeginVideo/EndVideo pair may be used per acquisition.
type VisualCapture interface {
	Snapshot(ctx context.Context, destDir string) (string, error)
	BeginVideo(ctx context.Context) error
	EndVideo(ctx context.Context, destDir string) (string, error)
	Release() error
}
