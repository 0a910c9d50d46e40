package relay

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ashureev/riata-onboarding/internal/identity"
)

// LastSeenUpdater records visitor activity.
type LastSeenUpdater interface {
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error
}

// Handler upgrades the browser relay websocket.
type Handler struct {
	mgr           *Manager
	repo          LastSeenUpdater
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a relay websocket handler.
func NewHandler(mgr *Manager, repo LastSeenUpdater, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		mgr:           mgr,
		repo:          repo,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("Voice relay connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if userID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "relay ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	c := h.mgr.register(userID, sessionID, ws)
	collab := h.mgr.Collaborator(userID, sessionID)
	defer func() {
		if h.mgr.unregister(userID, sessionID, c) {
			collab.detach()
		}
	}()

	h.readLoop(r.Context(), c, collab, userID)
	slog.Info("Voice relay ended", "user_id", userID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, c *conn, collab *Collaborator, userID string) {
	for {
		var msg inbound
		if err := wsjson.Read(ctx, c.ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		if msg.Type == TypePing {
			if err := c.send(ctx, outbound{Type: TypePong}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		} else {
			collab.handle(ctx, c, msg)
		}

		if h.repo != nil {
			go func() {
				updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := h.repo.UpdateLastSeen(updateCtx, userID, time.Now()); err != nil {
					slog.Warn("Failed to update last seen", "error", err)
				}
			}()
		}
	}
}
