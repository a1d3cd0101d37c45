package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/vanotis720/vochat/internal/audio"
	"github.com/vanotis720/vochat/internal/auth"
	"github.com/vanotis720/vochat/internal/bus"
	"github.com/vanotis720/vochat/internal/conversation"
	"github.com/vanotis720/vochat/internal/docstore"
	"github.com/vanotis720/vochat/internal/session"
	"github.com/vanotis720/vochat/internal/status"
	"go.uber.org/zap"
)

// Handler serves the daemon's local control API.
type Handler struct {
	profileName string
	startedAt   time.Time
	machine     *status.Machine
	sessions    *session.Manager
	sync        *conversation.Synchronizer
	recorder    *audio.Recorder
	playback    *audio.Playback
	bus         *bus.Bus
	logger      *zap.Logger
}

// New creates the control API handler.
func New(profileName string, machine *status.Machine, sessions *session.Manager,
	sync *conversation.Synchronizer, recorder *audio.Recorder, playback *audio.Playback,
	b *bus.Bus, logger *zap.Logger) *Handler {
	return &Handler{
		profileName: profileName,
		startedAt:   time.Now(),
		machine:     machine,
		sessions:    sessions,
		sync:        sync,
		recorder:    recorder,
		playback:    playback,
		bus:         b,
		logger:      logger,
	}
}

// Router builds the control API routes.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/status", h.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/login", h.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/v1/logout", h.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/v1/messages", h.handleListMessages).Methods(http.MethodGet)
	r.HandleFunc("/v1/messages", h.handleSendMessage).Methods(http.MethodPost)
	r.HandleFunc("/v1/recording/start", h.handleRecordingStart).Methods(http.MethodPost)
	r.HandleFunc("/v1/recording/stop", h.handleRecordingStop).Methods(http.MethodPost)
	r.HandleFunc("/v1/recording/ack", h.handleRecordingAck).Methods(http.MethodPost)
	r.HandleFunc("/v1/playback/{msgID}/play", h.handlePlaybackPlay).Methods(http.MethodPost)
	r.HandleFunc("/v1/playback/{msgID}/pause", h.handlePlaybackPause).Methods(http.MethodPost)
	r.HandleFunc("/v1/playback/{msgID}/release", h.handlePlaybackRelease).Methods(http.MethodPost)
	r.HandleFunc("/v1/events", h.handleEvents).Methods(http.MethodGet)
	return r
}

// StatusResponse describes the daemon for vochatctl status.
type StatusResponse struct {
	Profile        string `json:"profile"`
	Status         string `json:"status"`
	UptimeMs       int64  `json:"uptime_ms"`
	UserID         string `json:"user_id,omitempty"`
	Email          string `json:"email,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Messages       int    `json:"messages"`
	Sending        bool   `json:"sending"`
	Recording      string `json:"recording"`
	EventsDropped  int64  `json:"events_dropped"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Profile:       h.profileName,
		Status:        string(h.machine.Current()),
		UptimeMs:      time.Since(h.startedAt).Milliseconds(),
		Messages:      len(h.sync.View()),
		Sending:       h.sync.Sending(),
		Recording:     string(h.recorder.State()),
		EventsDropped: h.bus.Dropped(),
	}
	if u := h.sessions.CurrentUser(); u != nil {
		resp.UserID = u.ID
		resp.Email = u.Email
	}
	if id, ok := h.sync.Active(); ok {
		resp.ConversationID = id
	}
	writeJSON(w, http.StatusOK, resp)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := h.sessions.Login(r.Context(), req.Email, req.Password); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleListMessages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sync.View())
}

type sendRequest struct {
	Content string `json:"content"`
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := h.sync.Send(r.Context(), req.Content, docstore.KindText); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if err := h.recorder.Start(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(h.recorder.State())})
}

func (h *Handler) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if err := h.recorder.Stop(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(h.recorder.State())})
}

func (h *Handler) handleRecordingAck(w http.ResponseWriter, _ *http.Request) {
	h.recorder.Acknowledge()
	writeJSON(w, http.StatusOK, map[string]string{"state": string(h.recorder.State())})
}

type playRequest struct {
	URL string `json:"url"`
}

func (h *Handler) handlePlaybackPlay(w http.ResponseWriter, r *http.Request) {
	msgID := mux.Vars(r)["msgID"]

	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		// URL is optional when the message is in the current view.
		req.URL = h.audioURLFor(msgID)
	}
	if req.URL == "" {
		writeError(w, http.StatusNotFound, "not_found", "no audio message with id "+msgID)
		return
	}

	if err := h.playback.Play(r.Context(), msgID, req.URL); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(h.playback.State(msgID))})
}

func (h *Handler) handlePlaybackPause(w http.ResponseWriter, r *http.Request) {
	msgID := mux.Vars(r)["msgID"]
	if err := h.playback.Pause(msgID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(h.playback.State(msgID))})
}

func (h *Handler) handlePlaybackRelease(w http.ResponseWriter, r *http.Request) {
	msgID := mux.Vars(r)["msgID"]
	h.playback.Release(msgID)
	writeJSON(w, http.StatusOK, map[string]string{"state": string(h.playback.State(msgID))})
}

func (h *Handler) audioURLFor(msgID string) string {
	for _, m := range h.sync.View() {
		if m.ID == msgID && m.Kind == docstore.KindAudio {
			return m.Content
		}
	}
	return ""
}

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errType, msg string) {
	writeJSON(w, code, errorResponse{Error: msg, Type: errType})
}

// writeDomainError maps the error taxonomy onto HTTP statuses so clients can
// distinguish recoverable failures without parsing messages.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		vErr   *session.ValidationError
		aErr   *auth.Error
		sdErr  *conversation.SendError
		syErr  *conversation.SyncError
		recErr *audio.RecordingError
		upErr  *audio.UploadError
		plErr  *audio.PlaybackError
	)
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, "validation", vErr.Reason)
	case errors.As(err, &aErr):
		writeError(w, http.StatusUnauthorized, "auth:"+string(aErr.Category), err.Error())
	case errors.Is(err, audio.ErrBusy):
		writeError(w, http.StatusConflict, "recording_busy", err.Error())
	case errors.As(err, &recErr):
		writeError(w, http.StatusInternalServerError, "recording", err.Error())
	case errors.As(err, &upErr):
		writeError(w, http.StatusBadGateway, "upload", err.Error())
	case errors.As(err, &plErr):
		writeError(w, http.StatusInternalServerError, "playback", err.Error())
	case errors.As(err, &sdErr):
		writeError(w, http.StatusBadGateway, "send", err.Error())
	case errors.As(err, &syErr):
		writeError(w, http.StatusBadGateway, "sync", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
