package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/avitale/snapjournal/internal/capture"
	"github.com/avitale/snapjournal/internal/config"
	"github.com/avitale/snapjournal/internal/history"
	"github.com/avitale/snapjournal/internal/observability"
	"github.com/avitale/snapjournal/internal/protocol"
	"github.com/avitale/snapjournal/internal/recorder"
	"github.com/avitale/snapjournal/internal/stitch"
	"github.com/avitale/snapjournal/internal/upload"
)

type Server struct {
	cfg      config.Config
	captures *capture.Manager
	historyS history.Store
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, captures *capture.Manager, historyStore history.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		captures: captures,
		historyS: historyStore,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser clients may watch a capture
				// session unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/capture/session", s.handleCreateSession)
	r.Get("/v1/capture/session/ws", s.handleSessionWS)
	r.Get("/v1/capture/session/{id}", s.handleGetSession)
	r.Post("/v1/capture/session/{id}/photo", s.handleCapturePhoto)
	r.Post("/v1/capture/session/{id}/video/start", s.handleStartVideo)
	r.Post("/v1/capture/session/{id}/video/stop", s.handleStopVideo)
	r.Post("/v1/capture/session/{id}/audio/start", s.handleStartAudio)
	r.Post("/v1/capture/session/{id}/audio/stop", s.handleStopAudio)
	r.Post("/v1/capture/session/{id}/caption", s.handleSetCaption)
	r.Post("/v1/capture/session/{id}/submit", s.handleSubmit)
	r.Post("/v1/capture/session/{id}/reset", s.handleReset)
	r.Get("/v1/capture/history", s.handleHistory)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"capture_device":  s.cfg.CaptureDevice,
		"active_sessions": s.captures.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"upload_api_url": s.cfg.UploadAPIURL,
	})
}

type createSessionResponse struct {
	capture.Session
	TickIntervalMS  int64 `json:"tick_interval_ms"`
	InactivityTTLMS int64 `json:"inactivity_ttl_ms"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.captures.Create(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "session_create_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, createSessionResponse{
		Session:         sess,
		TickIntervalMS:  recorder.TickInterval.Milliseconds(),
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.captures.Get(id)
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleCapturePhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.captures.CapturePhoto(r.Context(), id)
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStartVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.captures.StartVideo(r.Context(), id)
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStopVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.captures.StopVideo(r.Context(), id)
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStartAudio(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.captures.StartAudio(r.Context(), id)
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStopAudio(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.captures.StopAudio(r.Context(), id)
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

type captionRequest struct {
	Caption string `json:"caption"`
}

func (s *Server) handleSetCaption(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req captionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sess, err := s.captures.SetCaption(id, req.Caption)
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

type submitResponse struct {
	Session capture.Session `json:"session"`
	Outcome upload.Outcome  `json:"outcome"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, outcome, err := s.captures.Submit(r.Context(), id)
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, submitResponse{Session: sess, Outcome: outcome})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.captures.Reset(r.Context(), id)
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.historyS == nil {
		respondJSON(w, http.StatusOK, map[string]any{"attempts": []history.AttemptRecord{}})
		return
	}
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer between 1 and 500")
			return
		}
		limit = n
	}
	attempts, err := s.historyS.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	if attempts == nil {
		attempts = []history.AttemptRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

// handleSessionWS streams session events (state changes, duration ticks,
// upload outcomes) to a connected UI. The stream is one-way; all UI actions
// arrive through the REST endpoints.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}

	events, cancelSub, err := s.captures.Subscribe(sessionID)
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	defer cancelSub()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
		defer s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
	}

	// Drain inbound frames so close handshakes and pings are processed.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		conn.SetReadLimit(1 << 16)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-readerDone:
			return
		case ev, ok := <-events:
			if !ok {
				deadline := time.Now().Add(2 * time.Second)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session expired"), deadline)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if s.metrics != nil {
				if t, ok := protocol.TypeOf(ev); ok {
					s.metrics.WSMessages.WithLabelValues(string(t)).Inc()
				}
			}
		}
	}
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return "", false
	}
	return id, true
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondCaptureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, capture.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, capture.ErrInvalidState):
		respondError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, recorder.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, recorder.ErrRecordingStart):
		respondError(w, http.StatusConflict, "recording_start_failed", err.Error())
	case errors.Is(err, recorder.ErrDeviceBusy):
		respondError(w, http.StatusConflict, "device_busy", err.Error())
	case errors.Is(err, stitch.ErrStitching):
		respondError(w, http.StatusUnprocessableEntity, "stitching_failed", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
