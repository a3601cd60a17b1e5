package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avitale/snapjournal/internal/artifact"
)

type capturedRequest struct {
	authorization     string
	fields            map[string]string
	fileNames         map[string]string
	sawAudio          bool
	captionPresent    bool
	requiresStitching string
	audioDuration     string
}

func newUploadBackend(t *testing.T, status int) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{fields: map[string]string{}, fileNames: map[string]string{}}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload" {
			t.Errorf("path = %q, want /upload", r.URL.Path)
		}
		captured.authorization = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for key, vals := range r.MultipartForm.Value {
			if len(vals) > 0 {
				captured.fields[key] = vals[0]
			}
			if key == "caption" {
				captured.captionPresent = true
			}
		}
		captured.requiresStitching = captured.fields["requiresStitching"]
		captured.audioDuration = captured.fields["audioDuration"]
		for key, files := range r.MultipartForm.File {
			if len(files) > 0 {
				captured.fileNames[key] = files[0].Filename
			}
			if key == "audio" {
				captured.sawAudio = true
			}
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(ts.Close)
	return ts, captured
}

func writeFile(t *testing.T, name string, payload []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestUploadPhotoIncludesEmptyCaption(t *testing.T) {
	ts, captured := newUploadBackend(t, http.StatusOK)
	u := NewUploader(ts.URL, StaticToken("tok-123"))

	photo := artifact.NewPhoto("p1", writeFile(t, "photo.jpg", []byte("jpeg bytes")), time.Now())
	outcome := u.Upload(context.Background(), photo, "")
	if !outcome.Success {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if captured.authorization != "Bearer tok-123" {
		t.Fatalf("authorization = %q, want Bearer tok-123", captured.authorization)
	}
	if !captured.captionPresent {
		t.Fatalf("caption field missing from upload with empty caption")
	}
	if got := captured.fileNames["file"]; got != "upload.jpg" {
		t.Fatalf("file name = %q, want upload.jpg", got)
	}
	if captured.sawAudio {
		t.Fatalf("photo upload unexpectedly carried an audio part")
	}
	if captured.requiresStitching != "" {
		t.Fatalf("requiresStitching = %q, want absent", captured.requiresStitching)
	}
}

func TestUploadVideoFilename(t *testing.T) {
	ts, captured := newUploadBackend(t, http.StatusCreated)
	u := NewUploader(ts.URL, StaticToken("tok"))

	video := artifact.NewVideo("v1", writeFile(t, "clip.mp4", []byte("mp4 bytes")), time.Now())
	outcome := u.Upload(context.Background(), video, "a day out")
	if !outcome.Success {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if got := captured.fileNames["file"]; got != "upload.mp4" {
		t.Fatalf("file name = %q, want upload.mp4", got)
	}
	if got := captured.fields["caption"]; got != "a day out" {
		t.Fatalf("caption = %q, want %q", got, "a day out")
	}
}

func TestUploadImagePackageCarriesStitchingFields(t *testing.T) {
	ts, captured := newUploadBackend(t, http.StatusOK)
	u := NewUploader(ts.URL, StaticToken("tok"))

	dir := t.TempDir()
	imagePath := filepath.Join(dir, "image.jpg")
	audioPath := filepath.Join(dir, "audio.m4a")
	metaPath := filepath.Join(dir, "metadata.json")
	for path, payload := range map[string][]byte{
		imagePath: []byte("jpeg"),
		audioPath: []byte("m4a"),
		metaPath:  []byte(`{"audio_duration_ms":3000}`),
	} {
		if err := os.WriteFile(path, payload, 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	pkg := artifact.NewImagePackage("pkg1", artifact.Package{
		DirectoryPath: dir,
		ImagePath:     imagePath,
		AudioPath:     audioPath,
		MetadataPath:  metaPath,
		DurationMS:    3000,
		CreatedAt:     time.Now(),
	})

	outcome := u.Upload(context.Background(), pkg, "with narration")
	if !outcome.Success {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if got := captured.fileNames["file"]; got != "image.jpg" {
		t.Fatalf("file name = %q, want image.jpg", got)
	}
	if !captured.sawAudio {
		t.Fatalf("package upload missing audio part")
	}
	if got := captured.fileNames["audio"]; got != "audio.m4a" {
		t.Fatalf("audio name = %q, want audio.m4a", got)
	}
	if captured.requiresStitching != "true" {
		t.Fatalf("requiresStitching = %q, want %q", captured.requiresStitching, "true")
	}
	if captured.audioDuration != "3000" {
		t.Fatalf("audioDuration = %q, want %q", captured.audioDuration, "3000")
	}
}

func TestUploadServerFailure(t *testing.T) {
	ts, _ := newUploadBackend(t, http.StatusInternalServerError)
	u := NewUploader(ts.URL, StaticToken("tok"))

	photo := artifact.NewPhoto("p1", writeFile(t, "photo.jpg", []byte("jpeg")), time.Now())
	outcome := u.Upload(context.Background(), photo, "caption")
	if outcome.Success {
		t.Fatalf("outcome = %+v, want failure", outcome)
	}
	if outcome.Cause != CauseServer {
		t.Fatalf("cause = %q, want %q", outcome.Cause, CauseServer)
	}
	if outcome.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", outcome.StatusCode)
	}
	if !outcome.Retryable {
		t.Fatalf("500 should be classified retryable")
	}
}

func TestUploadTransportFailure(t *testing.T) {
	ts, _ := newUploadBackend(t, http.StatusOK)
	url := ts.URL
	ts.Close()

	u := NewUploader(url, StaticToken("tok"))
	photo := artifact.NewPhoto("p1", writeFile(t, "photo.jpg", []byte("jpeg")), time.Now())
	outcome := u.Upload(context.Background(), photo, "caption")
	if outcome.Success {
		t.Fatalf("outcome = %+v, want failure", outcome)
	}
	if outcome.Cause != CauseTransport {
		t.Fatalf("cause = %q, want %q", outcome.Cause, CauseTransport)
	}
}

func TestUploadRejectsMissingMediaFile(t *testing.T) {
	ts, _ := newUploadBackend(t, http.StatusOK)
	u := NewUploader(ts.URL, StaticToken("tok"))

	photo := artifact.NewPhoto("p1", filepath.Join(t.TempDir(), "gone.jpg"), time.Now())
	outcome := u.Upload(context.Background(), photo, "caption")
	if outcome.Success || outcome.Cause != CauseInvalidArtifact {
		t.Fatalf("outcome = %+v, want invalid-artifact failure for missing file", outcome)
	}
	if outcome.Retryable {
		t.Fatalf("a locally-invalid artifact must not be marked retryable")
	}
}

func TestRetryableStatusClassification(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsRetryableStatus(code) {
			t.Fatalf("IsRetryableStatus(%d) = false, want true", code)
		}
	}
	for _, code := range []int{400, 401, 403, 404, 413, 422} {
		if IsRetryableStatus(code) {
			t.Fatalf("IsRetryableStatus(%d) = true, want false", code)
		}
	}
}
