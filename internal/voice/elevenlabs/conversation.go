package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ashureev/riata-onboarding/internal/voice"
)

// ErrAlreadyOpen is returned by Open on a conversation that is running.
var ErrAlreadyOpen = errors.New("conversation already open")

// Conversation is a text-only session held directly against the
// platform. It implements voice.Collaborator and voice.TextSender.
type Conversation struct {
	client *Client

	mu      sync.Mutex
	ws      *websocket.Conn
	closing bool
	done    chan struct{}

	writeMu sync.Mutex
}

// Open dials the agent, sends the session overrides and waits for the
// platform to assign a conversation id.
func (c *Conversation) Open(ctx context.Context, opts voice.Options, cb voice.Callbacks) error {
	c.mu.Lock()
	if c.ws != nil {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.mu.Unlock()

	u, err := c.client.conversationURL(ctx, opts.AgentID)
	if err != nil {
		return err
	}

	ws, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial conversation: %w", err)
	}

	setup := initiationData{Type: eventInitiationData}
	setup.Override.Conversation.TextOnly = true
	if err := c.write(ctx, ws, setup); err != nil {
		_ = ws.Close(websocket.StatusInternalError, "initiation failed")
		return fmt.Errorf("send initiation data: %w", err)
	}

	conversationID, err := c.awaitMetadata(ctx, ws)
	if err != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "initiation failed")
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.ws = ws
	c.closing = false
	c.done = done
	c.mu.Unlock()

	slog.Info("Direct conversation opened", "conversation_id", conversationID, "agent_id", opts.AgentID)
	if cb.OnConnect != nil {
		cb.OnConnect(conversationID)
	}
	go c.readLoop(ws, cb, done)
	return nil
}

func (c *Conversation) awaitMetadata(ctx context.Context, ws *websocket.Conn) (string, error) {
	for {
		var ev serverEvent
		if err := wsjson.Read(ctx, ws, &ev); err != nil {
			return "", fmt.Errorf("await conversation metadata: %w", err)
		}
		switch ev.Type {
		case eventInitiationMetadata:
			if ev.Metadata == nil {
				return "", nil
			}
			return ev.Metadata.ConversationID, nil
		case eventPing:
			c.answerPing(ctx, ws, ev)
		}
	}
}

func (c *Conversation) readLoop(ws *websocket.Conn, cb voice.Callbacks, done chan struct{}) {
	defer close(done)
	ctx := context.Background()

	for {
		var ev serverEvent
		if err := wsjson.Read(ctx, ws, &ev); err != nil {
			c.mu.Lock()
			closing := c.closing
			if c.ws == ws {
				c.ws = nil
			}
			c.mu.Unlock()

			if closing {
				return
			}
			if websocket.CloseStatus(err) == -1 {
				slog.Warn("Direct conversation read error", "error", err)
				if cb.OnError != nil {
					cb.OnError(voice.ErrorEvent{Message: "Connection to the voice agent was lost"})
				}
			}
			if cb.OnDisconnect != nil {
				cb.OnDisconnect()
			}
			return
		}
		c.dispatch(ctx, ws, cb, ev)
	}
}

func (c *Conversation) dispatch(ctx context.Context, ws *websocket.Conn, cb voice.Callbacks, ev serverEvent) {
	switch ev.Type {
	case eventUserTranscript:
		if ev.UserTranscript != nil && cb.OnMessage != nil {
			cb.OnMessage(voice.TranscriptEvent{Message: ev.UserTranscript.Text, Source: sourceUser})
		}

	case eventAgentResponse:
		if ev.AgentResponse != nil && cb.OnMessage != nil {
			cb.OnMessage(voice.TranscriptEvent{Message: ev.AgentResponse.Text, Source: sourceAgent})
		}

	case eventClientToolCall:
		if ev.ToolCall != nil {
			c.handleToolCall(ctx, ws, cb, ev)
		}

	case eventPing:
		c.answerPing(ctx, ws, ev)

	case eventInterruption, eventInitiationMetadata:
		// nothing to record

	default:
		slog.Debug("Ignoring conversation event", "type", ev.Type)
	}
}

func (c *Conversation) handleToolCall(ctx context.Context, ws *websocket.Conn, cb voice.Callbacks, ev serverEvent) {
	call := voice.ToolCall{ID: ev.ToolCall.ID, Name: ev.ToolCall.Name}
	reply := toolResult{Type: eventClientToolResult, ToolCallID: call.ID}

	if len(ev.ToolCall.Parameters) > 0 {
		if err := json.Unmarshal(ev.ToolCall.Parameters, &call.Parameters); err != nil {
			reply.Result, reply.IsError = "invalid parameters", true
			c.sendResult(ctx, ws, reply)
			return
		}
	}

	if cb.OnToolCall == nil {
		reply.Result, reply.IsError = voice.ErrUnknownTool.Error(), true
	} else if ack, err := cb.OnToolCall(call); err != nil {
		reply.Result, reply.IsError = err.Error(), true
	} else {
		reply.Result = ack
	}
	c.sendResult(ctx, ws, reply)
}

func (c *Conversation) sendResult(ctx context.Context, ws *websocket.Conn, reply toolResult) {
	if err := c.write(ctx, ws, reply); err != nil {
		slog.Warn("Failed to send tool result", "error", err, "tool_call_id", reply.ToolCallID)
	}
}

func (c *Conversation) answerPing(ctx context.Context, ws *websocket.Conn, ev serverEvent) {
	p := pong{Type: eventPong}
	if ev.Ping != nil {
		p.EventID = ev.Ping.EventID
	}
	if err := c.write(ctx, ws, p); err != nil {
		slog.Debug("Failed to answer ping", "error", err)
	}
}

func (c *Conversation) write(ctx context.Context, ws *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsjson.Write(ctx, ws, v)
}

// SendText sends typed input to the agent.
func (c *Conversation) SendText(ctx context.Context, text string) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return voice.ErrNotConnected
	}
	return c.write(ctx, ws, userMessage{Type: eventUserMessage, Text: text})
}

// Close ends the conversation and waits for the read loop to stop.
func (c *Conversation) Close(ctx context.Context) error {
	c.mu.Lock()
	ws, done := c.ws, c.done
	if ws == nil {
		c.mu.Unlock()
		return voice.ErrNotConnected
	}
	c.closing = true
	c.mu.Unlock()

	if err := ws.Close(websocket.StatusNormalClosure, "conversation ended"); err != nil {
		slog.Debug("Conversation close handshake incomplete", "error", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("close conversation: %w", ctx.Err())
	}

	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	c.closing = false
	c.mu.Unlock()
	return nil
}
