package recorder

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// MockMicrophone is an in-process microphone used for dev and tests. Its
// recordings are short silent WAV clips so downstream stages handle real
// audio bytes.
type MockMicrophone struct {
	DenyPermission bool
	Busy           bool
	FinishErr      error
	// FinishPath overrides the written file path; tests point it at a
	// nonexistent file to exercise packaging failures.
	FinishPath string
}

func (m *MockMicrophone) Acquire(_ context.Context) (AudioCapture, error) {
	if m.DenyPermission {
		return nil, ErrPermissionDenied
	}
	if m.Busy {
		return nil, ErrDeviceBusy
	}
	return &mockAudioCapture{mic: m}, nil
}

type mockAudioCapture struct {
	mic      *MockMicrophone
	mu       sync.Mutex
	released bool
}

func (c *mockAudioCapture) Finish(_ context.Context, destDir string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return "", os.ErrClosed
	}
	c.released = true

	if c.mic.FinishErr != nil {
		return "", c.mic.FinishErr
	}
	if c.mic.FinishPath != "" {
		return c.mic.FinishPath, nil
	}

	// Half a second of 16kHz mono silence.
	wav := encodeWAVPCM16(make([]byte, 16000), 16000)
	path := filepath.Join(destDir, "rec-"+uuid.NewString()+".m4a")
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (c *mockAudioCapture) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	return nil
}

// MockCamera is an in-process camera. Snapshots are small decodable JPEGs so
// the packager's resize step works against mock output.
type MockCamera struct {
	DenyPermission bool
	Busy           bool
	SnapshotErr    error
	// SnapshotWidth lets tests produce oversized stills to exercise the
	// packager's bounded resize. Zero means 64px.
	SnapshotWidth int
}

func (m *MockCamera) Acquire(_ context.Context) (VisualCapture, error) {
	if m.DenyPermission {
		return nil, ErrPermissionDenied
	}
	if m.Busy {
		return nil, ErrDeviceBusy
	}
	return &mockVisualCapture{cam: m}, nil
}

type mockVisualCapture struct {
	cam         *MockCamera
	mu          sync.Mutex
	videoActive bool
	released    bool
}

func (c *mockVisualCapture) Snapshot(_ context.Context, destDir string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return "", os.ErrClosed
	}
	if c.cam.SnapshotErr != nil {
		return "", c.cam.SnapshotErr
	}

	width := c.cam.SnapshotWidth
	if width <= 0 {
		width = 64
	}
	path := filepath.Join(destDir, "photo-"+uuid.NewString()+".jpg")
	if err := os.WriteFile(path, encodeMockJPEG(width, width*3/4), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (c *mockVisualCapture) BeginVideo(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return os.ErrClosed
	}
	c.videoActive = true
	return nil
}

func (c *mockVisualCapture) EndVideo(_ context.Context, destDir string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.videoActive {
		return "", os.ErrClosed
	}
	c.videoActive = false

	path := filepath.Join(destDir, "video-"+uuid.NewString()+".mp4")
	if err := os.WriteFile(path, []byte("mock mp4 payload"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (c *mockVisualCapture) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	c.videoActive = false
	return nil
}

func encodeMockJPEG(width, height int) []byte {
	if height <= 0 {
		height = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / width), G: uint8(y * 255 / height), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}
