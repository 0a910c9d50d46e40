package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/riata-onboarding/internal/identity"
	"github.com/ashureev/riata-onboarding/internal/session"
	"github.com/ashureev/riata-onboarding/internal/voice"
	"github.com/ashureev/riata-onboarding/internal/voice/relay"
)

// SnapshotEvent is the first event of a fresh stream.
const SnapshotEvent = "snapshot"

// closeTimeout bounds how long End waits for the platform.
const closeTimeout = 15 * time.Second

// SessionHandler handles the learner's session endpoints.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/start", h.Start)
			r.Post("/end", h.End)
			r.Post("/reset", h.Reset)
			r.Post("/message", h.SendMessage)
			r.Get("/stream", h.broker.Stream(h.stream, streamKey, h.initialSnapshot))
		})
	})
}

func streamKey(r *http.Request) string {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		return ""
	}
	return session.Key(userID, identity.SessionIDFromContext(r.Context()))
}

func (h *SessionHandler) current(r *http.Request) *session.Session {
	ctx := r.Context()
	return h.reg.GetOrCreate(identity.UserIDFromContext(ctx), identity.SessionIDFromContext(ctx))
}

func (h *SessionHandler) initialSnapshot(r *http.Request) (string, []byte, error) {
	data, err := json.Marshal(h.current(r).Snapshot())
	return SnapshotEvent, data, err
}

// GetMe returns the current visitor's identity.
func (h *SessionHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"user_id":    userID,
		"username":   identity.UsernameFromContext(r.Context()),
		"session_id": identity.SessionIDFromContext(r.Context()),
	})
}

// GetConfig returns the voice configuration for the frontend.
func (h *SessionHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.client)
}

// Get returns the full session snapshot.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.current(r).Snapshot())
}

type startRequest struct {
	Microphone string `json:"microphone"`
	Error      string `json:"error"`
}

// permissionError carries the browser's denial message.
type permissionError struct {
	msg string
}

func (e permissionError) Error() string { return e.msg }
func (e permissionError) Unwrap() error { return voice.ErrPermissionDenied }

// microphone reports the browser's permission outcome to the session.
// Direct conversations are text-only and need no microphone.
func (h *SessionHandler) microphone(req startRequest) voice.Microphone {
	if !h.client.VoiceRequired() {
		return nil
	}
	return voice.MicrophoneFunc(func(context.Context) error {
		if req.Microphone == "granted" {
			return nil
		}
		if req.Error != "" {
			return permissionError{msg: req.Error}
		}
		return voice.ErrPermissionDenied
	})
}

// Start opens a call and waits until it is connected or has failed.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decode(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s := h.current(r)
	// The call outlives a dropped request; End cancels it instead.
	err := s.Start(context.WithoutCancel(r.Context()), h.microphone(req))
	if err != nil {
		slog.Warn("Session start failed", "session_key", s.Key(), "error", err)
		JSON(w, startStatus(err), map[string]any{
			"error":   err.Error(),
			"session": s.Snapshot(),
		})
		return
	}
	JSON(w, http.StatusOK, s.Snapshot())
}

func startStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrStartInProgress), errors.Is(err, session.ErrAlreadyActive),
		errors.Is(err, session.ErrStartCancelled):
		return http.StatusConflict
	case errors.Is(err, voice.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, relay.ErrNoRelay):
		return http.StatusPreconditionFailed
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// End closes the call, or cancels it while connecting.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	s := h.current(r)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), closeTimeout)
	defer cancel()

	if err := s.End(ctx); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, session.ErrNotActive) || errors.Is(err, session.ErrEndInProgress) {
			status = http.StatusConflict
		}
		JSON(w, status, map[string]any{"error": err.Error(), "session": s.Snapshot()})
		return
	}
	JSON(w, http.StatusOK, s.Snapshot())
}

// Reset clears the session view when no call is open.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	s := h.current(r)
	if err := s.Reset(); err != nil {
		Error(w, http.StatusConflict, err.Error())
		return
	}
	JSON(w, http.StatusOK, s.Snapshot())
}

type messageRequest struct {
	Text string `json:"text"`
}

// SendMessage forwards typed input to the agent.
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s := h.current(r)
	if err := s.SendText(r.Context(), req.Text); err != nil {
		switch {
		case errors.Is(err, voice.ErrTextUnsupported):
			Error(w, http.StatusNotImplemented, err.Error())
		case errors.Is(err, session.ErrNotActive), errors.Is(err, voice.ErrNotConnected),
			errors.Is(err, relay.ErrNoRelay):
			Error(w, http.StatusConflict, err.Error())
		default:
			Error(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
