// Package api provides HTTP handlers for the RIATA API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ashureev/riata-onboarding/internal/config"
	"github.com/ashureev/riata-onboarding/internal/events"
	"github.com/ashureev/riata-onboarding/internal/session"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClientConfig is what the browser needs to drive a call.
type ClientConfig struct {
	AgentID        string `json:"agent_id"`
	ConnectionType string `json:"connection_type"`
	VoiceMode      string `json:"voice_mode"`
	TextInput      bool   `json:"text_input"`
}

// VoiceRequired reports whether calls use the learner's microphone.
func (c ClientConfig) VoiceRequired() bool {
	return c.VoiceMode != config.ModeDirect
}

// Handler provides common handler utilities.
type Handler struct {
	reg    *session.Registry
	broker *events.Broker
	repo   Pinger
	client ClientConfig
	stream events.StreamConfig
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(reg *session.Registry, broker *events.Broker, repo Pinger, client ClientConfig, stream events.StreamConfig) *Handler {
	return &Handler{
		reg:    reg,
		broker: broker,
		repo:   repo,
		client: client,
		stream: stream,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads an optional JSON body into v. An empty body leaves v
// untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
