package capture

// State is the capture session machine position. One session moves through
// at most one recording, packaging or upload operation at a time.
type State string

const (
	StateIdle            State = "idle"
	StateRecordingVisual State = "recording_visual"
	StateCapturedVisual  State = "captured_visual"
	StateRecordingAudio  State = "recording_audio"
	StatePackaging       State = "packaging"
	StateReadyToUpload   State = "ready_to_upload"
	StateUploading       State = "uploading"
)

// validNext maps each state to its legal successor states. A reset to Idle
// is additionally legal from every state and handled by Reset directly.
var validNext = map[State][]State{
	StateIdle:            {StateRecordingVisual},
	StateRecordingVisual: {StateCapturedVisual, StateIdle},
	StateCapturedVisual:  {StateRecordingAudio, StateUploading},
	StateRecordingAudio:  {StatePackaging, StateCapturedVisual},
	StatePackaging:       {StateReadyToUpload, StateCapturedVisual},
	StateReadyToUpload:   {StateUploading},
	StateUploading:       {StateIdle, StateCapturedVisual, StateReadyToUpload},
}

func canTransition(from, to State) bool {
	if to == StateIdle && from != StateIdle {
		return true
	}
	for _, next := range validNext[from] {
		if next == to {
			return true
		}
	}
	return false
}
