package recorder

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"os"
	"testing"
	"time"
)

func TestVisualRecorderCapturePhoto(t *testing.T) {
	r := NewVisualRecorder(&MockCamera{}, t.TempDir(), 10*time.Millisecond, nil)

	path, err := r.CapturePhoto(context.Background())
	if err != nil {
		t.Fatalf("CapturePhoto() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read photo: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("photo is not a decodable JPEG: %v", err)
	}
	if r.Active() {
		t.Fatalf("Active() = true after snapshot, camera should be released")
	}
}

func TestVisualRecorderVideoStartStop(t *testing.T) {
	r := NewVisualRecorder(&MockCamera{}, t.TempDir(), 10*time.Millisecond, nil)

	if err := r.StartVideo(context.Background()); err != nil {
		t.Fatalf("StartVideo() error = %v", err)
	}
	if !r.Active() {
		t.Fatalf("Active() = false while recording video")
	}

	time.Sleep(35 * time.Millisecond)
	path, elapsed, err := r.StopVideo(context.Background())
	if err != nil {
		t.Fatalf("StopVideo() error = %v", err)
	}
	if path == "" {
		t.Fatalf("StopVideo() returned empty path")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("video file missing: %v", err)
	}
	if elapsed < 20*time.Millisecond {
		t.Fatalf("elapsed = %v, want at least 2 ticks", elapsed)
	}
}

func TestVisualRecorderStopVideoWithoutStartIsNoOp(t *testing.T) {
	r := NewVisualRecorder(&MockCamera{}, t.TempDir(), 10*time.Millisecond, nil)

	path, elapsed, err := r.StopVideo(context.Background())
	if err != nil {
		t.Fatalf("StopVideo() without start error = %v, want nil", err)
	}
	if path != "" || elapsed != 0 {
		t.Fatalf("StopVideo() without start = (%q, %v), want empty no-op", path, elapsed)
	}
}

func TestVisualRecorderPermissionDenied(t *testing.T) {
	r := NewVisualRecorder(&MockCamera{DenyPermission: true}, t.TempDir(), 10*time.Millisecond, nil)

	if _, err := r.CapturePhoto(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("CapturePhoto() error = %v, want ErrPermissionDenied", err)
	}
	if err := r.StartVideo(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("StartVideo() error = %v, want ErrPermissionDenied", err)
	}
}

func TestVisualRecorderRejectsPhotoDuringVideo(t *testing.T) {
	r := NewVisualRecorder(&MockCamera{}, t.TempDir(), 10*time.Millisecond, nil)
	defer r.Teardown()

	if err := r.StartVideo(context.Background()); err != nil {
		t.Fatalf("StartVideo() error = %v", err)
	}
	if _, err := r.CapturePhoto(context.Background()); !errors.Is(err, ErrRecordingStart) {
		t.Fatalf("CapturePhoto() during video error = %v, want ErrRecordingStart", err)
	}
}

func TestStagedDevicesServeFixtures(t *testing.T) {
	mediaDir := t.TempDir()
	destDir := t.TempDir()
	for name, payload := range map[string][]byte{
		"photo.jpg": encodeMockJPEG(32, 24),
		"video.mp4": []byte("fixture mp4"),
		"audio.m4a": encodeWAVPCM16(make([]byte, 3200), 16000),
	} {
		if err := os.WriteFile(mediaDir+"/"+name, payload, 0o644); err != nil {
			t.Fatalf("write fixture %s: %v", name, err)
		}
	}

	vr := NewVisualRecorder(&StagedCamera{MediaDir: mediaDir}, destDir, 10*time.Millisecond, nil)
	photo, err := vr.CapturePhoto(context.Background())
	if err != nil {
		t.Fatalf("staged CapturePhoto() error = %v", err)
	}
	if _, err := os.Stat(photo); err != nil {
		t.Fatalf("staged photo missing: %v", err)
	}

	ar := NewAudioRecorder(&StagedMicrophone{MediaDir: mediaDir}, destDir, 10*time.Millisecond, nil)
	if err := ar.Start(context.Background()); err != nil {
		t.Fatalf("staged audio Start() error = %v", err)
	}
	audio, _, err := ar.Stop(context.Background())
	if err != nil {
		t.Fatalf("staged audio Stop() error = %v", err)
	}
	if _, err := os.Stat(audio); err != nil {
		t.Fatalf("staged audio missing: %v", err)
	}
}

func TestStagedMicrophoneMissingFixture(t *testing.T) {
	ar := NewAudioRecorder(&StagedMicrophone{MediaDir: t.TempDir()}, t.TempDir(), 10*time.Millisecond, nil)
	if err := ar.Start(context.Background()); !errors.Is(err, ErrRecordingStart) {
		t.Fatalf("Start() error = %v, want ErrRecordingStart", err)
	}
}
