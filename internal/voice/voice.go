// Package voice defines the boundary with the external voice-agent
// platform. The platform performs speech recognition, turn-taking and
// reasoning; this side only opens and closes sessions and reacts to the
// callbacks it delivers.
package voice

import (
	"context"
	"errors"
)

// ToolUpdateProfile is the name of the tool the agent invokes with newly
// extracted profile fields.
const ToolUpdateProfile = "UPDATE_PROFILE"

// ToolAck is returned to the agent after a successful profile update.
const ToolAck = "Profile information captured successfully"

// Connection types understood by the platform.
const (
	ConnectionWebRTC    = "webrtc"
	ConnectionWebSocket = "websocket"
)

var (
	// ErrPermissionDenied is returned when the host refuses microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrNotConnected is returned by Close when no session is open.
	ErrNotConnected = errors.New("voice session not connected")
	// ErrUnknownTool is returned for tool calls other than UPDATE_PROFILE.
	ErrUnknownTool = errors.New("unknown tool")
)

// Options identifies the agent and transport for a session.
type Options struct {
	AgentID        string
	ConnectionType string
}

// TranscriptEvent is a line of conversation reported by the platform.
type TranscriptEvent struct {
	Message string `json:"message"`
	Source  string `json:"source"`
}

// ErrorEvent is a runtime error reported during an active session.
type ErrorEvent struct {
	Message string `json:"message,omitempty"`
}

// Text returns the message, defaulting to "Unknown error".
func (e ErrorEvent) Text() string {
	if e.Message == "" {
		return "Unknown error"
	}
	return e.Message
}

// Status is presentation-only connection state.
type Status struct {
	Connected bool `json:"connected"`
	Speaking  bool `json:"speaking"`
}

// ToolCall is an invocation of a client tool by the agent.
type ToolCall struct {
	ID         string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
}

// Callbacks are invoked by a Collaborator. The collaborator never invokes
// two callbacks concurrently for the same session. All fields are
// optional.
type Callbacks struct {
	// OnConnect is called once the platform confirms the session.
	OnConnect func(conversationID string)

	// OnDisconnect is called when the platform ends the session.
	OnDisconnect func()

	// OnMessage is called with each transcript line.
	OnMessage func(TranscriptEvent)

	// OnError is called on runtime errors during an active session.
	OnError func(ErrorEvent)

	// OnStatus is called when speaking/listening state changes.
	OnStatus func(Status)

	// OnToolCall handles a client tool invocation and returns the
	// acknowledgement sent back to the agent.
	OnToolCall func(ToolCall) (string, error)
}

// Collaborator is a handle to the voice-agent platform for one session.
type Collaborator interface {
	// Open starts a session and blocks until the platform confirms it or
	// the attempt fails. Cancelling ctx abandons the attempt.
	Open(ctx context.Context, opts Options, cb Callbacks) error

	// Close ends the session and blocks until the platform acknowledges.
	Close(ctx context.Context) error
}

// Microphone grants access to the learner's audio input on the host.
type Microphone interface {
	Request(ctx context.Context) error
}

// MicrophoneFunc adapts a function to Microphone.
type MicrophoneFunc func(ctx context.Context) error

// Request calls f.
func (f MicrophoneFunc) Request(ctx context.Context) error { return f(ctx) }

// TextSender is implemented by collaborators that accept typed input
// in place of speech.
type TextSender interface {
	SendText(ctx context.Context, text string) error
}

// ErrTextUnsupported is returned when the collaborator cannot take typed
// input.
var ErrTextUnsupported = errors.New("text input not supported")
