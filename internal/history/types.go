package history

import (
	"context"
	"time"
)

// AttemptRecord stores the result of a single upload attempt.
type AttemptRecord struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	ArtifactKind    string    `json:"artifact_kind"`
	Caption         string    `json:"caption"`
	Success         bool      `json:"success"`
	StatusCode      int       `json:"status_code"`
	Cause           string    `json:"cause,omitempty"`
	AudioDurationMS int64     `json:"audio_duration_ms,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store persists and retrieves upload attempt history.
type Store interface {
	RecordAttempt(ctx context.Context, record AttemptRecord) error
	Recent(ctx context.Context, limit int) ([]AttemptRecord, error)
	Close() error
}
