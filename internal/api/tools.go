package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ashureev/riata-onboarding/internal/middleware"
	"github.com/ashureev/riata-onboarding/internal/telemetry"
	"github.com/ashureev/riata-onboarding/internal/voice"
)

var tracer = telemetry.Tracer("github.com/ashureev/riata-onboarding/internal/api")

// ToolHandler receives server-side tool webhooks from the voice platform.
type ToolHandler struct {
	*Handler
	limiter *middleware.RateLimiter
}

// NewToolHandler creates a tool webhook handler.
func NewToolHandler(base *Handler, limiter *middleware.RateLimiter) *ToolHandler {
	return &ToolHandler{Handler: base, limiter: limiter}
}

// RegisterRoutes registers tool routes. They sit outside the identity
// middleware since the platform, not the browser, calls them.
func (h *ToolHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/tools", func(r chi.Router) {
		if h.limiter != nil {
			r.Use(middleware.RateLimit(h.limiter, conversationID))
		}
		r.Post("/update_profile", h.UpdateProfile)
	})
}

// conversationID prefers the query parameter and falls back to the
// platform's header.
func conversationID(r *http.Request) string {
	if id := r.URL.Query().Get("conversation_id"); id != "" {
		return id
	}
	return r.Header.Get("X-Conversation-ID")
}

type updateRequest struct {
	ConversationID string         `json:"conversation_id"`
	Fields         map[string]any `json:"fields"`
}

// UpdateProfile applies an UPDATE_PROFILE call to the bound session. The
// body is either {"conversation_id":..., "fields":{...}} or the bare
// field map with the id in the query string. A call without fields is
// still recorded and acknowledged, as on the client tool path.
func (h *ToolHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "tool.update_profile")
	defer span.End()

	var raw map[string]any
	if err := decode(r.WithContext(ctx), &raw); err != nil {
		span.SetStatus(codes.Error, "invalid body")
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req := parseUpdate(raw)
	if req.ConversationID == "" {
		req.ConversationID = conversationID(r)
	}
	span.SetAttributes(attribute.String("conversation.id", req.ConversationID))

	s := h.reg.ByConversation(req.ConversationID)
	if s == nil {
		slog.Warn("Profile update for unknown conversation", "conversation_id", req.ConversationID)
		span.SetStatus(codes.Error, "unknown conversation")
		Error(w, http.StatusNotFound, "no active session for conversation")
		return
	}

	res := s.ApplyUpdate(req.Fields)
	span.SetAttributes(
		attribute.Int("profile.score", res.Score),
		attribute.StringSlice("profile.keys", res.Event.Keys()),
	)
	JSON(w, http.StatusOK, map[string]any{
		"result": voice.ToolAck,
		"score":  res.Score,
	})
}

func parseUpdate(raw map[string]any) updateRequest {
	var req updateRequest
	if id, ok := raw["conversation_id"].(string); ok {
		req.ConversationID = strings.TrimSpace(id)
	}
	if fields, ok := raw["fields"].(map[string]any); ok {
		req.Fields = fields
		return req
	}
	req.Fields = make(map[string]any, len(raw))
	for k, v := range raw {
		if k != "conversation_id" {
			req.Fields[k] = v
		}
	}
	return req
}
