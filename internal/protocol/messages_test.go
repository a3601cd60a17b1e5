package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseEventRoundTrip(t *testing.T) {
	in := StateChanged{
		Type:         TypeStateChanged,
		SessionID:    "s1",
		From:         "idle",
		To:           "recording_visual",
		ArtifactKind: "",
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	got, ok := out.(StateChanged)
	if !ok {
		t.Fatalf("ParseEvent() type = %T, want StateChanged", out)
	}
	if got != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, in)
	}
}

func TestParseEventRejectsUnknownType(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"type":"mystery"}`)); err == nil {
		t.Fatalf("ParseEvent() accepted unknown type")
	}
}

func TestTypeOfCoversAllEvents(t *testing.T) {
	cases := []struct {
		event any
		want  EventType
	}{
		{StateChanged{Type: TypeStateChanged}, TypeStateChanged},
		{DurationTick{Type: TypeDurationTick}, TypeDurationTick},
		{UploadOutcome{Type: TypeUploadOutcome}, TypeUploadOutcome},
		{SessionExpired{Type: TypeSessionExpired}, TypeSessionExpired},
	}
	for _, tc := range cases {
		got, ok := TypeOf(tc.event)
		if !ok || got != tc.want {
			t.Fatalf("TypeOf(%T) = (%q, %v), want (%q, true)", tc.event, got, ok, tc.want)
		}
	}
	if _, ok := TypeOf(struct{}{}); ok {
		t.Fatalf("TypeOf(unknown) = true, want false")
	}
}
