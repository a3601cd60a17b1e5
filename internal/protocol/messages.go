package protocol

import (
	"encoding/json"
	"fmt"
)

// EventType identifies websocket event payload variants. The event stream
// is server-to-client only; UI actions arrive over the HTTP API.
type EventType string

const (
	TypeStateChanged   EventType = "state_changed"
	TypeDurationTick   EventType = "duration_tick"
	TypeUploadOutcome  EventType = "upload_outcome"
	TypeSessionExpired EventType = "session_expired"
)

type Envelope struct {
	Type EventType `json:"type"`
}

// StateChanged announces a session state machine transition.
type StateChanged struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	// ArtifactKind is set when the transition produced or replaced an artifact.
	ArtifactKind string `json:"artifact_kind,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// DurationTick carries the per-second elapsed counter for UI feedback while
// an audio or video recording is active.
type DurationTick struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Ticks     int       `json:"ticks"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

// UploadOutcome reports the result of one upload attempt.
type UploadOutcome struct {
	Type       EventType `json:"type"`
	SessionID  string    `json:"session_id"`
	Success    bool      `json:"success"`
	StatusCode int       `json:"status_code,omitempty"`
	Cause      string    `json:"cause,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Retryable  bool      `json:"retryable,omitempty"`
}

// SessionExpired announces that the janitor force-reset an inactive session.
type SessionExpired struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// TypeOf extracts the event type for metrics labelling.
func TypeOf(v any) (EventType, bool) {
	switch m := v.(type) {
	case StateChanged:
		return m.Type, true
	case DurationTick:
		return m.Type, true
	case UploadOutcome:
		return m.Type, true
	case SessionExpired:
		return m.Type, true
	default:
		return "", false
	}
}

// ParseEvent decodes a serialized event back into its concrete type. Used
// by client-side consumers and tests.
func ParseEvent(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeStateChanged:
		var msg StateChanged
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeDurationTick:
		var msg DurationTick
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeUploadOutcome:
		var msg UploadOutcome
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeSessionExpired:
		var msg SessionExpired
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unsupported event type %q", env.Type)
	}
}
