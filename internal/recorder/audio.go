package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// AudioRecorder drives one microphone recording at a time and tracks the
// elapsed duration in ticks. The zero duration passed to New falls back to
// the fixed 1s interval.
type AudioRecorder struct {
	mic          Microphone
	destDir      string
	tickInterval time.Duration
	onTick       func(int)

	mu      sync.Mutex
	capture AudioCapture
	ticker  *durationTicker
}

func NewAudioRecorder(mic Microphone, destDir string, tickInterval time.Duration, onTick func(int)) *AudioRecorder {
	if tickInterval <= 0 {
		tickInterval = TickInterval
	}
	return &AudioRecorder{
		mic:          mic,
		destDir:      destDir,
		tickInterval: tickInterval,
		onTick:       onTick,
	}
}

// Start acquires the microphone and begins counting ticks from zero.
func (r *AudioRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture != nil {
		return fmt.Errorf("%w: audio recording already active", ErrRecordingStart)
	}

	capture, err := r.mic.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrRecordingStart, err)
	}

	r.capture = capture
	r.ticker = startDurationTicker(r.tickInterval, r.onTick)
	return nil
}

// Stop finalizes the recording and returns the audio path plus the measured
// duration. Stopping with no active recording is a benign no-op.
func (r *AudioRecorder) Stop(ctx context.Context) (string, time.Duration, error) {
	r.mu.Lock()
	capture := r.capture
	ticker := r.ticker
	r.capture = nil
	r.ticker = nil
	r.mu.Unlock()

	if capture == nil {
		return "", 0, nil
	}

	// The counter must be halted before finalizing so no tick can observe a
	// recording that is already gone.
	ticks := ticker.Stop()
	elapsed := time.Duration(ticks) * r.tickInterval

	path, err := capture.Finish(ctx, r.destDir)
	if err != nil {
		_ = capture.Release()
		return "", elapsed, fmt.Errorf("finalize audio recording: %w", err)
	}
	return path, elapsed, nil
}

func (r *AudioRecorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capture != nil
}

func (r *AudioRecorder) ElapsedTicks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticker == nil {
		return 0
	}
	return r.ticker.Ticks()
}

// Teardown releases the microphone and cancels the ticker without
// finalizing. Used on session reset and forced expiry.
func (r *AudioRecorder) Teardown() {
	r.mu.Lock()
	capture := r.capture
	ticker := r.ticker
	r.capture = nil
	r.ticker = nil
	r.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
	}
	if capture != nil {
		_ = capture.Release()
	}
}
