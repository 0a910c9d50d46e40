package elevenlabs

import "encoding/json"

// Event types on the conversation websocket.
const (
	eventInitiationMetadata = "conversation_initiation_metadata"
	eventInitiationData     = "conversation_initiation_client_data"
	eventUserTranscript     = "user_transcript"
	eventAgentResponse      = "agent_response"
	eventClientToolCall     = "client_tool_call"
	eventClientToolResult   = "client_tool_result"
	eventUserMessage        = "user_message"
	eventPing               = "ping"
	eventPong               = "pong"
	eventInterruption       = "interruption"
)

// Transcript sources as reported to voice.Callbacks.
const (
	sourceUser  = "user"
	sourceAgent = "ai"
)

type serverEvent struct {
	Type string `json:"type"`

	Metadata *struct {
		ConversationID string `json:"conversation_id"`
	} `json:"conversation_initiation_metadata_event,omitempty"`

	UserTranscript *struct {
		Text string `json:"user_transcript"`
	} `json:"user_transcription_event,omitempty"`

	AgentResponse *struct {
		Text string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`

	ToolCall *struct {
		Name       string          `json:"tool_name"`
		ID         string          `json:"tool_call_id"`
		Parameters json.RawMessage `json:"parameters"`
	} `json:"client_tool_call,omitempty"`

	Ping *struct {
		EventID int64 `json:"event_id"`
	} `json:"ping_event,omitempty"`
}

type initiationData struct {
	Type     string         `json:"type"`
	Override configOverride `json:"conversation_config_override"`
}

type configOverride struct {
	Conversation struct {
		TextOnly bool `json:"text_only"`
	} `json:"conversation"`
}

type toolResult struct {
	Type       string `json:"type"`
	ToolCallID string `json:"tool_call_id"`
	Result     string `json:"result"`
	IsError    bool   `json:"is_error"`
}

type userMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type pong struct {
	Type    string `json:"type"`
	EventID int64  `json:"event_id"`
}
