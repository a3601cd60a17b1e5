package recorder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Staged devices serve fixture media from a local directory so the whole
// pipeline runs end-to-end on a machine with no camera or microphone. The
// directory is expected to contain photo.jpg, video.mp4 and audio.m4a.

type StagedMicrophone struct {
	MediaDir string
}

func (m *StagedMicrophone) Acquire(_ context.Context) (AudioCapture, error) {
	src := filepath.Join(m.MediaDir, "audio.m4a")
	if _, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("staged audio fixture: %w", err)
	}
	return &stagedAudioCapture{src: src}, nil
}

type stagedAudioCapture struct {
	src      string
	mu       sync.Mutex
	released bool
}

func (c *stagedAudioCapture) Finish(_ context.Context, destDir string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return "", os.ErrClosed
	}
	c.released = true

	dst := filepath.Join(destDir, "rec-"+uuid.NewString()+".m4a")
	if err := copyFixture(c.src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (c *stagedAudioCapture) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	return nil
}

type StagedCamera struct {
	MediaDir string
}

func (m *StagedCamera) Acquire(_ context.Context) (VisualCapture, error) {
	if _, err := os.Stat(m.MediaDir); err != nil {
		return nil, fmt.Errorf("staged media dir: %w", err)
	}
	return &stagedVisualCapture{mediaDir: m.MediaDir}, nil
}

type stagedVisualCapture struct {
	mediaDir    string
	mu          sync.Mutex
	videoActive bool
	released    bool
}

func (c *stagedVisualCapture) Snapshot(_ context.Context, destDir string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return "", os.ErrClosed
	}

	dst := filepath.Join(destDir, "photo-"+uuid.NewString()+".jpg")
	if err := copyFixture(filepath.Join(c.mediaDir, "photo.jpg"), dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (c *stagedVisualCapture) BeginVideo(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return os.ErrClosed
	}
	if _, err := os.Stat(filepath.Join(c.mediaDir, "video.mp4")); err != nil {
		return fmt.Errorf("staged video fixture: %w", err)
	}
	c.videoActive = true
	return nil
}

func (c *stagedVisualCapture) EndVideo(_ context.Context, destDir string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.videoActive {
		return "", os.ErrClosed
	}
	c.videoActive = false

	dst := filepath.Join(destDir, "video-"+uuid.NewString()+".mp4")
	if err := copyFixture(filepath.Join(c.mediaDir, "video.mp4"), dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (c *stagedVisualCapture) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	c.videoActive = false
	return nil
}

func copyFixture(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open fixture %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy fixture: %w", err)
	}
	return out.Close()
}
