// Package relay drives the voice platform through the learner's browser.
// The page runs the platform SDK (microphone, audio, WebRTC) and relays
// its callbacks over a websocket; the server keeps the session state.
package relay

import "encoding/json"

// Messages sent to the browser.
const (
	TypeOpenSession  = "open_session"
	TypeCloseSession = "close_session"
	TypeToolResult   = "tool_result"
	TypeSendText     = "send_text"
	TypePong         = "pong"
)

// Messages received from the browser.
const (
	TypeConnected     = "connected"
	TypeConnectFailed = "connect_failed"
	TypeClosed        = "closed"
	TypeCloseFailed   = "close_failed"
	TypeDisconnected  = "disconnected"
	TypeMessage       = "message"
	TypeError         = "error"
	TypeStatus        = "status"
	TypeToolCall      = "tool_call"
	TypePing          = "ping"
)

// outbound is a server-to-browser frame.
type outbound struct {
	Type           string `json:"type"`
	AgentID        string `json:"agent_id,omitempty"`
	ConnectionType string `json:"connection_type,omitempty"`
	SignedURL      string `json:"signed_url,omitempty"`
	ToolCallID     string `json:"tool_call_id,omitempty"`
	Result         string `json:"result,omitempty"`
	IsError        bool   `json:"is_error,omitempty"`
	Text           string `json:"text,omitempty"`
}

// inbound is a browser-to-server frame.
type inbound struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Message        string          `json:"message,omitempty"`
	Source         string          `json:"source,omitempty"`
	Connected      bool            `json:"connected,omitempty"`
	Speaking       bool            `json:"speaking,omitempty"`
	ToolCallID     string          `json:"tool_call_id,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	Parameters     json.RawMessage `json:"parameters,omitempty"`
}
