package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avitale/snapjournal/internal/artifact"
	"github.com/avitale/snapjournal/internal/history"
	"github.com/avitale/snapjournal/internal/observability"
	"github.com/avitale/snapjournal/internal/protocol"
	"github.com/avitale/snapjournal/internal/recorder"
	"github.com/avitale/snapjournal/internal/upload"
)

// Deps wires the manager to its collaborators. Metrics and History may be
// nil in tests.
type Deps struct {
	Camera            recorder.Camera
	Microphone        recorder.Microphone
	Packager          Packager
	Uploader          Uploader
	History           history.Store
	Metrics           *observability.Metrics
	CacheDir          string
	TickInterval      time.Duration
	InactivityTimeout time.Duration
}

// Manager owns every capture session and is the only writer of session
// state. It enforces the single-active-operation invariant: a session in
// any non-Idle state rejects new capture-start requests instead of
// overlapping recordings.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*liveSession
}

type liveSession struct {
	mu sync.Mutex

	id             string
	dir            string
	state          State
	caption        string
	art            *artifact.Artifact
	elapsedTicks   int
	recStartedAt   time.Time
	startedAt      time.Time
	lastActivityAt time.Time

	// gen invalidates in-flight packaging/upload commits after a reset or
	// expiry: the background operation completes but its result is dropped.
	gen int

	audio  *recorder.AudioRecorder
	visual *recorder.VisualRecorder

	subs    map[int]chan any
	nextSub int
}

func NewManager(deps Deps) *Manager {
	if deps.TickInterval <= 0 {
		deps.TickInterval = recorder.TickInterval
	}
	if deps.InactivityTimeout <= 0 {
		deps.InactivityTimeout = 5 * time.Minute
	}
	return &Manager{
		deps:     deps,
		sessions: make(map[string]*liveSession),
	}
}

// Create starts a new Idle session with its own cache directory and
// recorder pair.
func (m *Manager) Create(_ context.Context) (Session, error) {
	now := time.Now().UTC()
	ls := &liveSession{
		id:             uuid.NewString(),
		state:          StateIdle,
		startedAt:      now,
		lastActivityAt: now,
		subs:           make(map[int]chan any),
	}
	ls.dir = filepath.Join(m.deps.CacheDir, "session-"+ls.id)
	if err := os.MkdirAll(ls.dir, 0o755); err != nil {
		return Session{}, fmt.Errorf("create session cache dir: %w", err)
	}

	tick := m.deps.TickInterval
	onTick := func(n int) {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		if ls.state != StateRecordingAudio && ls.state != StateRecordingVisual {
			return
		}
		ls.elapsedTicks = n
		ls.emitLocked(protocol.DurationTick{
			Type:      protocol.TypeDurationTick,
			SessionID: ls.id,
			Ticks:     n,
			ElapsedMS: int64(n) * tick.Milliseconds(),
		})
	}
	ls.audio = recorder.NewAudioRecorder(m.deps.Microphone, ls.dir, tick, onTick)
	ls.visual = recorder.NewVisualRecorder(m.deps.Camera, ls.dir, tick, onTick)

	m.mu.Lock()
	m.sessions[ls.id] = ls
	count := len(m.sessions)
	m.mu.Unlock()

	if m.deps.Metrics != nil {
		m.deps.Metrics.ActiveSessions.Set(float64(count))
		m.deps.Metrics.SessionEvents.WithLabelValues("created").Inc()
	}
	return ls.snapshot(), nil
}

func (m *Manager) Get(sessionID string) (Session, error) {
	ls, err := m.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}
	return ls.snapshot(), nil
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CapturePhoto takes a still image. Only an Idle session may start a
// capture; the transient RecordingVisual state blocks overlapping starts
// while the camera is held.
func (m *Manager) CapturePhoto(ctx context.Context, sessionID string) (Session, error) {
	ls, err := m.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}

	ls.mu.Lock()
	if ls.state != StateIdle {
		defer ls.mu.Unlock()
		return ls.snapshotLocked(), fmt.Errorf("%w: capture start requires idle, session is %s", ErrInvalidState, ls.state)
	}
	m.setStateLocked(ls, StateRecordingVisual, "")
	ls.beginRecordingLocked()
	ls.mu.Unlock()

	path, err := ls.visual.CapturePhoto(ctx)

	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.recStartedAt = time.Time{}
	if err != nil {
		m.setStateLocked(ls, StateIdle, "photo capture failed")
		return ls.snapshotLocked(), err
	}
	ls.art = artifact.NewPhoto(uuid.NewString(), path, time.Now().UTC())
	m.setStateLocked(ls, StateCapturedVisual, "")
	return ls.snapshotLocked(), nil
}

// StartVideo begins continuous camera capture.
func (m *Manager) StartVideo(ctx context.Context, sessionID string) (Session, error) {
	ls, err := m.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}

	ls.mu.Lock()
	if ls.state != StateIdle {
		defer ls.mu.Unlock()
		return ls.snapshotLocked(), fmt.Errorf("%w: capture start requires idle, session is %s", ErrInvalidState, ls.state)
	}
	m.setStateLocked(ls, StateRecordingVisual, "")
	ls.beginRecordingLocked()
	ls.mu.Unlock()

	err = ls.visual.StartVideo(ctx)

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if err != nil {
		m.setStateLocked(ls, StateIdle, "video start failed")
		return ls.snapshotLocked(), err
	}
	return ls.snapshotLocked(), nil
}

// StopVideo ends continuous capture and yields a video artifact. Stopping
// with no video in progress is a benign no-op.
func (m *Manager) StopVideo(ctx context.Context, sessionID string) (Session, error) {
	ls, err := m.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}

	ls.mu.Lock()
	if ls.state != StateRecordingVisual || !ls.visual.Active() {
		defer ls.mu.Unlock()
		return ls.snapshotLocked(), nil
	}
	gen := ls.gen
	ls.mu.Unlock()

	path, _, err := ls.visual.StopVideo(ctx)

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.gen != gen {
		return ls.snapshotLocked(), nil
	}
	ls.recStartedAt = time.Time{}
	if err != nil {
		m.setStateLocked(ls, StateIdle, "video stop failed")
		return ls.snapshotLocked(), err
	}
	if path == "" {
		// A concurrent stop already finalized this recording; there is
		// nothing to commit.
		return ls.snapshotLocked(), nil
	}
	ls.art = artifact.NewVideo(uuid.NewString(), path, time.Now().UTC())
	m.setStateLocked(ls, StateCapturedVisual, "")
	return ls.snapshotLocked(), nil
}

// StartAudio begins narration recording against a captured photo. Video
// artifacts skip audio pairing entirely.
func (m *Manager) StartAudio(ctx context.Context, sessionID string) (Session, error) {
	ls, err := m.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}

	ls.mu.Lock()
	if ls.state != StateCapturedVisual {
		defer ls.mu.Unlock()
		return ls.snapshotLocked(), fmt.Errorf("%w: audio narration requires a captured visual, session is %s", ErrInvalidState, ls.state)
	}
	if ls.art == nil || ls.art.Kind != artifact.KindPhoto {
		defer ls.mu.Unlock()
		return ls.snapshotLocked(), fmt.Errorf("%w: audio narration only pairs with photos", ErrInvalidState)
	}
	ls.mu.Unlock()

	err = ls.audio.Start(ctx)

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if err != nil {
		return ls.snapshotLocked(), err
	}
	if ls.state != StateCapturedVisual {
		// The session moved on (reset) while the microphone spun up.
		ls.mu.Unlock()
		ls.audio.Teardown()
		ls.mu.Lock()
		return ls.snapshotLocked(), fmt.Errorf("%w: session changed during audio start", ErrInvalidState)
	}
	m.setStateLocked(ls, StateRecordingAudio, "")
	ls.beginRecordingLocked()
	return ls.snapshotLocked(), nil
}

// StopAudio ends narration and runs packaging. On stitching failure the
// session degrades back to the original photo; the capture is never lost.
func (m *Manager) StopAudio(ctx context.Context, sessionID string) (Session, error) {
	ls, err := m.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}

	ls.mu.Lock()
	if ls.state != StateRecordingAudio || !ls.audio.Active() {
		defer ls.mu.Unlock()
		return ls.snapshotLocked(), nil
	}
	photo := ls.art
	gen := ls.gen
	ls.mu.Unlock()

	audioPath, elapsed, err := ls.audio.Stop(ctx)

	ls.mu.Lock()
	ls.recStartedAt = time.Time{}
	if ls.gen != gen {
		defer ls.mu.Unlock()
		return ls.snapshotLocked(), nil
	}
	if err != nil || audioPath == "" || photo == nil || photo.Path == "" {
		m.setStateLocked(ls, StateCapturedVisual, "audio discarded")
		defer ls.mu.Unlock()
		if err != nil {
			return ls.snapshotLocked(), err
		}
		return ls.snapshotLocked(), nil
	}
	m.setStateLocked(ls, StatePackaging, "")
	ls.mu.Unlock()

	start := time.Now()
	pkg, perr := m.deps.Packager.Package(ctx, photo.Path, audioPath, elapsed)
	if m.deps.Metrics != nil {
		m.deps.Metrics.ObservePackagingDuration(time.Since(start))
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.gen != gen {
		// Session was reset while packaging ran; drop the result.
		if pkg != nil {
			_ = m.deps.Packager.Discard(pkg)
		}
		return ls.snapshotLocked(), nil
	}
	if perr != nil {
		m.setStateLocked(ls, StateCapturedVisual, "stitching failed, falling back to the original photo")
		return ls.snapshotLocked(), perr
	}
	ls.art = pkg
	m.setStateLocked(ls, StateReadyToUpload, "")
	return ls.snapshotLocked(), nil
}

// SetCaption updates the caption accompanying the next submit. Captions
// cannot change while an upload is in flight.
func (m *Manager) SetCaption(sessionID, caption string) (Session, error) {
	ls, err := m.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.state == StateUploading {
		return ls.snapshotLocked(), fmt.Errorf("%w: caption is locked during upload", ErrInvalidState)
	}
	ls.caption = caption
	ls.lastActivityAt = time.Now().UTC()
	return ls.snapshotLocked(), nil
}

// Submit runs one upload attempt. On success the session resets to Idle
// and the package directory is removed; on failure the artifact and
// caption survive so the user can resubmit without recapturing.
func (m *Manager) Submit(ctx context.Context, sessionID string) (Session, upload.Outcome, error) {
	ls, err := m.lookup(sessionID)
	if err != nil {
		return Session{}, upload.Outcome{}, err
	}

	ls.mu.Lock()
	if ls.state != StateCapturedVisual && ls.state != StateReadyToUpload {
		defer ls.mu.Unlock()
		return ls.snapshotLocked(), upload.Outcome{}, fmt.Errorf("%w: submit requires a captured artifact, session is %s", ErrInvalidState, ls.state)
	}
	prior := ls.state
	art := ls.art
	caption := ls.caption
	gen := ls.gen
	m.setStateLocked(ls, StateUploading, "")
	ls.mu.Unlock()

	start := time.Now()
	outcome := m.deps.Uploader.Upload(ctx, art, caption)
	if m.deps.Metrics != nil {
		m.deps.Metrics.ObserveUploadDuration(time.Since(start))
		label := "failure"
		if outcome.Success {
			label = "success"
		}
		m.deps.Metrics.UploadOutcomes.WithLabelValues(label).Inc()
	}
	m.recordAttempt(ctx, ls.id, art, caption, outcome)

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.gen != gen {
		// Reset won the race; the session already moved on and the
		// artifact was discarded there.
		return ls.snapshotLocked(), outcome, nil
	}

	ls.emitLocked(protocol.UploadOutcome{
		Type:       protocol.TypeUploadOutcome,
		SessionID:  ls.id,
		Success:    outcome.Success,
		StatusCode: outcome.StatusCode,
		Cause:      string(outcome.Cause),
		Detail:     outcome.Message,
		Retryable:  outcome.Retryable,
	})

	if outcome.Success {
		_ = m.deps.Packager.Discard(art)
		ls.art = nil
		ls.caption = ""
		ls.elapsedTicks = 0
		ls.recStartedAt = time.Time{}
		m.setStateLocked(ls, StateIdle, "upload complete")
	} else {
		m.setStateLocked(ls, prior, "upload failed, artifact preserved")
	}
	return ls.snapshotLocked(), outcome, nil
}

// Reset is the explicit "start over": release any active recorder, delete
// an unsubmitted package directory and return to Idle. Legal from every
// state; an in-flight packaging or upload keeps running but its result is
// discarded when it lands.
func (m *Manager) Reset(_ context.Context, sessionID string) (Session, error) {
	ls, err := m.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}

	ls.mu.Lock()
	ls.gen++
	art := ls.art
	ls.art = nil
	ls.caption = ""
	ls.elapsedTicks = 0
	ls.recStartedAt = time.Time{}
	if ls.state != StateIdle {
		m.setStateLocked(ls, StateIdle, "start over")
	} else {
		ls.lastActivityAt = time.Now().UTC()
	}
	snap := ls.snapshotLocked()
	ls.mu.Unlock()

	// Recorder teardown happens outside the session lock: stopping a
	// ticker waits for its goroutine, which may be blocked on the lock.
	ls.audio.Teardown()
	ls.visual.Teardown()
	_ = m.deps.Packager.Discard(art)

	if m.deps.Metrics != nil {
		m.deps.Metrics.SessionEvents.WithLabelValues("reset").Inc()
	}
	return snap, nil
}

// Subscribe attaches an event listener to a session. The returned cancel
// must be called when the listener goes away.
func (m *Manager) Subscribe(sessionID string) (<-chan any, func(), error) {
	ls, err := m.lookup(sessionID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan any, 64)
	ls.mu.Lock()
	if ls.subs == nil {
		ls.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	id := ls.nextSub
	ls.nextSub++
	ls.subs[id] = ch
	ls.mu.Unlock()

	cancel := func() {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		if ls.subs == nil {
			return
		}
		if _, ok := ls.subs[id]; ok {
			delete(ls.subs, id)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// StartJanitor expires sessions with no activity past the configured
// timeout, releasing their devices and cache directories.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()

	m.mu.Lock()
	var expired []*liveSession
	for id, ls := range m.sessions {
		ls.mu.Lock()
		stale := now.Sub(ls.lastActivityAt) >= m.deps.InactivityTimeout
		ls.mu.Unlock()
		if stale {
			expired = append(expired, ls)
			delete(m.sessions, id)
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	for _, ls := range expired {
		ls.mu.Lock()
		ls.gen++
		art := ls.art
		ls.art = nil
		ls.emitLocked(protocol.SessionExpired{Type: protocol.TypeSessionExpired, SessionID: ls.id})
		for id, ch := range ls.subs {
			delete(ls.subs, id)
			close(ch)
		}
		ls.subs = nil
		ls.mu.Unlock()

		ls.audio.Teardown()
		ls.visual.Teardown()
		_ = m.deps.Packager.Discard(art)
		_ = os.RemoveAll(ls.dir)

		if m.deps.Metrics != nil {
			m.deps.Metrics.SessionEvents.WithLabelValues("expired").Inc()
		}
	}
	if m.deps.Metrics != nil && len(expired) > 0 {
		m.deps.Metrics.ActiveSessions.Set(float64(count))
	}
}

func (m *Manager) lookup(sessionID string) (*liveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return ls, nil
}

func (m *Manager) setStateLocked(ls *liveSession, to State, detail string) {
	from := ls.state
	if from == to {
		return
	}
	if !canTransition(from, to) {
		// Transition table violations are programming errors; refuse the
		// move rather than corrupt the session.
		return
	}
	ls.state = to
	ls.lastActivityAt = time.Now().UTC()

	var kind string
	if ls.art != nil {
		kind = string(ls.art.Kind)
	}
	ls.emitLocked(protocol.StateChanged{
		Type:         protocol.TypeStateChanged,
		SessionID:    ls.id,
		From:         string(from),
		To:           string(to),
		ArtifactKind: kind,
		Detail:       detail,
	})
	if m.deps.Metrics != nil {
		m.deps.Metrics.StateTransitions.WithLabelValues(string(to)).Inc()
	}
}

func (m *Manager) recordAttempt(ctx context.Context, sessionID string, art *artifact.Artifact, caption string, outcome upload.Outcome) {
	if m.deps.History == nil || art == nil {
		return
	}
	var durationMS int64
	if art.Package != nil {
		durationMS = art.Package.DurationMS
	}
	// History is advisory; a store failure must not fail the upload flow.
	_ = m.deps.History.RecordAttempt(ctx, history.AttemptRecord{
		SessionID:       sessionID,
		ArtifactKind:    string(art.Kind),
		Caption:         caption,
		Success:         outcome.Success,
		StatusCode:      outcome.StatusCode,
		Cause:           string(outcome.Cause),
		AudioDurationMS: durationMS,
	})
}

func (ls *liveSession) beginRecordingLocked() {
	ls.elapsedTicks = 0
	ls.recStartedAt = time.Now().UTC()
}

func (ls *liveSession) emitLocked(ev any) {
	for _, ch := range ls.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscribers miss events rather than stall the session.
		}
	}
}

func (ls *liveSession) snapshot() Session {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.snapshotLocked()
}

func (ls *liveSession) snapshotLocked() Session {
	s := Session{
		ID:             ls.id,
		State:          ls.state,
		Caption:        ls.caption,
		Artifact:       ls.art,
		ElapsedTicks:   ls.elapsedTicks,
		StartedAt:      ls.startedAt,
		LastActivityAt: ls.lastActivityAt,
	}
	if !ls.recStartedAt.IsZero() {
		t := ls.recStartedAt
		s.RecordingStartedAt = &t
	}
	return s
}
