package capture

import (
	"context"
	"errors"
	"time"

	"github.com/avitale/snapjournal/internal/artifact"
	"github.com/avitale/snapjournal/internal/upload"
)

var (
	ErrNotFound = errors.New("capture session not found")

	// ErrInvalidState rejects an operation the current state does not
	// allow, including any capture-start request outside Idle.
	ErrInvalidState = errors.New("operation not allowed in current state")
)

// Session is a read-only snapshot of one capture session.
type Session struct {
	ID                 string             `json:"session_id"`
	State              State              `json:"state"`
	Caption            string             `json:"caption"`
	Artifact           *artifact.Artifact `json:"artifact,omitempty"`
	ElapsedTicks       int                `json:"elapsed_ticks"`
	RecordingStartedAt *time.Time         `json:"recording_started_at,omitempty"`
	StartedAt          time.Time          `json:"started_at"`
	LastActivityAt     time.Time          `json:"last_activity_at"`
}

// Packager assembles an image and an audio clip into one package artifact.
type Packager interface {
	Package(ctx context.Context, imagePath, audioPath string, audioDuration time.Duration) (*artifact.Artifact, error)
	Discard(a *artifact.Artifact) error
}

// Uploader submits one artifact plus caption attempt to the backend.
type Uploader interface {
	Upload(ctx context.Context, a *artifact.Artifact, caption string) upload.Outcome
}
