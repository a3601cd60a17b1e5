package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/avitale/snapjournal/internal/artifact"
)

// TokenProvider returns the current bearer token. The token may be stale;
// no refresh-and-retry is attempted here — resubmission is user-driven.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider that always returns the same token.
type StaticToken string

func (t StaticToken) Token(_ context.Context) (string, error) { return string(t), nil }

// FailureCause distinguishes why an upload attempt failed.
type FailureCause string

const (
	CauseNone      FailureCause = ""
	CauseTransport FailureCause = "transport"
	CauseServer    FailureCause = "server"
	// CauseInvalidArtifact marks an artifact that failed local validation
	// before any request was made; resubmitting cannot help.
	CauseInvalidArtifact FailureCause = "invalid_artifact"
)

// Outcome is the result of exactly one upload attempt. On failure the
// artifact and caption are preserved by the caller so the user can resubmit
// without recapturing.
type Outcome struct {
	Success    bool         `json:"success"`
	Cause      FailureCause `json:"cause,omitempty"`
	StatusCode int          `json:"status_code,omitempty"`
	Message    string       `json:"message,omitempty"`
	Retryable  bool         `json:"retryable,omitempty"`
}

// Uploader serializes an artifact plus caption into one multipart POST
// against the backend upload endpoint.
type Uploader struct {
	endpoint string
	tokens   TokenProvider
	client   *http.Client
}

func NewUploader(apiURL string, tokens TokenProvider) *Uploader {
	return &Uploader{
		endpoint: strings.TrimRight(strings.TrimSpace(apiURL), "/") + "/upload",
		tokens:   tokens,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Upload sends one attempt and classifies the result. It never retries.
func (u *Uploader) Upload(ctx context.Context, a *artifact.Artifact, caption string) Outcome {
	if err := a.Validate(); err != nil {
		return Outcome{
			Cause:   CauseInvalidArtifact,
			Message: fmt.Sprintf("artifact not uploadable: %v", err),
		}
	}

	token, err := u.tokens.Token(ctx)
	if err != nil {
		return transportFailure(fmt.Errorf("fetch bearer token: %w", err))
	}

	body, contentType, err := buildMultipartBody(a, caption)
	if err != nil {
		return transportFailure(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return transportFailure(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := u.client.Do(req)
	if err != nil {
		return transportFailure(fmt.Errorf("send upload: %w", err))
	}
	defer res.Body.Close()

	if IsSuccessStatus(res.StatusCode) {
		return Outcome{Success: true, StatusCode: res.StatusCode}
	}

	// Response body is surfaced for diagnostics only, never parsed.
	detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	return Outcome{
		Cause:      CauseServer,
		StatusCode: res.StatusCode,
		Message:    fmt.Sprintf("upload status %d: %s", res.StatusCode, strings.TrimSpace(string(detail))),
		Retryable:  IsRetryableStatus(res.StatusCode),
	}
}

func buildMultipartBody(a *artifact.Artifact, caption string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := writeFilePart(w, "file", a.UploadFilename(), a.MediaPath()); err != nil {
		return nil, "", err
	}
	if audioPath := a.AudioPath(); audioPath != "" {
		if err := writeFilePart(w, "audio", "audio.m4a", audioPath); err != nil {
			return nil, "", err
		}
	}

	// Caption is always present, even when empty.
	if err := w.WriteField("caption", caption); err != nil {
		return nil, "", fmt.Errorf("write caption field: %w", err)
	}

	if a.RequiresStitching() {
		if err := w.WriteField("requiresStitching", "true"); err != nil {
			return nil, "", fmt.Errorf("write stitching field: %w", err)
		}
		if err := w.WriteField("audioDuration", strconv.FormatInt(a.Package.DurationMS, 10)); err != nil {
			return nil, "", fmt.Errorf("write duration field: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func writeFilePart(w *multipart.Writer, field, filename, path string) error {
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy %s payload: %w", field, err)
	}
	return nil
}

func transportFailure(err error) Outcome {
	return Outcome{
		Cause:     CauseTransport,
		Message:   err.Error(),
		Retryable: true,
	}
}
