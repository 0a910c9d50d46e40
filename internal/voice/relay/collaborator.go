package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/riata-onboarding/internal/voice"
)

// ErrNoRelay is returned when the tab has no relay socket open.
var ErrNoRelay = errors.New("browser relay not connected")

type result struct {
	err error
}

// Collaborator implements voice.Collaborator for one browser tab.
type Collaborator struct {
	mgr    *Manager
	userID string
	tabID  string

	mu      sync.Mutex
	cb      voice.Callbacks
	open    bool
	opening chan result
	closing chan result
}

// Open asks the browser to start a platform session and waits for it to
// report back.
func (c *Collaborator) Open(ctx context.Context, opts voice.Options, cb voice.Callbacks) error {
	conn := c.mgr.active(c.userID, c.tabID)
	if conn == nil {
		return ErrNoRelay
	}

	msg := outbound{Type: TypeOpenSession, AgentID: opts.AgentID, ConnectionType: opts.ConnectionType}
	if c.mgr.signURL != nil {
		signed, err := c.mgr.signURL(ctx, opts.AgentID)
		if err != nil {
			return fmt.Errorf("sign conversation url: %w", err)
		}
		msg.SignedURL = signed
	}

	waiter := make(chan result, 1)
	c.mu.Lock()
	c.cb = cb
	c.open = false
	c.opening = waiter
	c.mu.Unlock()

	if err := conn.send(ctx, msg); err != nil {
		c.clearOpening(waiter)
		return fmt.Errorf("send open request: %w", err)
	}

	select {
	case res := <-waiter:
		return res.err
	case <-ctx.Done():
		c.clearOpening(waiter)
		_ = conn.send(context.Background(), outbound{Type: TypeCloseSession})
		return ctx.Err()
	}
}

func (c *Collaborator) clearOpening(waiter chan result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opening == waiter {
		c.opening = nil
	}
}

// Close asks the browser to end the platform session and waits for the
// acknowledgement.
func (c *Collaborator) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return voice.ErrNotConnected
	}
	waiter := make(chan result, 1)
	c.closing = waiter
	c.mu.Unlock()

	conn := c.mgr.active(c.userID, c.tabID)
	if conn == nil {
		c.markClosed()
		return voice.ErrNotConnected
	}
	if err := conn.send(ctx, outbound{Type: TypeCloseSession}); err != nil {
		c.clearClosing(waiter)
		return fmt.Errorf("send close request: %w", err)
	}

	select {
	case res := <-waiter:
		return res.err
	case <-ctx.Done():
		c.clearClosing(waiter)
		return ctx.Err()
	}
}

func (c *Collaborator) clearClosing(waiter chan result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing == waiter {
		c.closing = nil
	}
}

func (c *Collaborator) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.closing = nil
}

// SendText forwards typed input to the agent through the browser SDK.
func (c *Collaborator) SendText(ctx context.Context, text string) error {
	conn := c.mgr.active(c.userID, c.tabID)
	if conn == nil {
		return ErrNoRelay
	}
	return conn.send(ctx, outbound{Type: TypeSendText, Text: text})
}

func (c *Collaborator) callbacks() voice.Callbacks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cb
}

// handle applies one browser frame. Frames for a tab are handled in
// order by its read loop, so callbacks never run concurrently.
func (c *Collaborator) handle(ctx context.Context, conn *conn, msg inbound) {
	cb := c.callbacks()

	switch msg.Type {
	case TypeConnected:
		c.mu.Lock()
		c.open = true
		waiter := c.opening
		c.opening = nil
		c.mu.Unlock()
		if cb.OnConnect != nil {
			cb.OnConnect(msg.ConversationID)
		}
		if waiter != nil {
			waiter <- result{}
		}

	case TypeConnectFailed:
		c.mu.Lock()
		waiter := c.opening
		c.opening = nil
		c.mu.Unlock()
		if waiter != nil {
			waiter <- result{err: errors.New(orDefault(msg.Message, "Failed to start conversation"))}
		}

	case TypeClosed:
		c.mu.Lock()
		c.open = false
		waiter := c.closing
		c.closing = nil
		c.mu.Unlock()
		if waiter != nil {
			waiter <- result{}
		} else if cb.OnDisconnect != nil {
			cb.OnDisconnect()
		}

	case TypeCloseFailed:
		c.mu.Lock()
		waiter := c.closing
		c.closing = nil
		c.mu.Unlock()
		if waiter != nil {
			waiter <- result{err: errors.New(orDefault(msg.Message, "Failed to end conversation"))}
		}

	case TypeDisconnected:
		c.mu.Lock()
		wasOpen := c.open
		pendingClose := c.closing != nil
		c.open = false
		c.mu.Unlock()
		if wasOpen && !pendingClose && cb.OnDisconnect != nil {
			cb.OnDisconnect()
		}

	case TypeMessage:
		if cb.OnMessage != nil {
			cb.OnMessage(voice.TranscriptEvent{Message: msg.Message, Source: msg.Source})
		}

	case TypeError:
		if cb.OnError != nil {
			cb.OnError(voice.ErrorEvent{Message: msg.Message})
		}

	case TypeStatus:
		if cb.OnStatus != nil {
			cb.OnStatus(voice.Status{Connected: msg.Connected, Speaking: msg.Speaking})
		}

	case TypeToolCall:
		c.handleToolCall(ctx, conn, cb, msg)

	default:
		slog.Debug("Ignoring relay frame", "type", msg.Type, "user_id", c.userID)
	}
}

func (c *Collaborator) handleToolCall(ctx context.Context, conn *conn, cb voice.Callbacks, msg inbound) {
	call := voice.ToolCall{ID: msg.ToolCallID, Name: msg.ToolName}
	if len(msg.Parameters) > 0 {
		if err := json.Unmarshal(msg.Parameters, &call.Parameters); err != nil {
			slog.Warn("Invalid tool call parameters", "error", err, "tool", msg.ToolName)
			_ = conn.send(ctx, outbound{Type: TypeToolResult, ToolCallID: msg.ToolCallID, Result: "invalid parameters", IsError: true})
			return
		}
	}

	reply := outbound{Type: TypeToolResult, ToolCallID: call.ID}
	if cb.OnToolCall == nil {
		reply.Result, reply.IsError = voice.ErrUnknownTool.Error(), true
	} else if ack, err := cb.OnToolCall(call); err != nil {
		reply.Result, reply.IsError = err.Error(), true
	} else {
		reply.Result = ack
	}
	if err := conn.send(ctx, reply); err != nil {
		slog.Warn("Failed to send tool result", "error", err, "tool_call_id", call.ID)
	}
}

// detach is called when the tab's socket goes away. A pending open fails
// and an open session is reported as disconnected.
func (c *Collaborator) detach() {
	c.mu.Lock()
	wasOpen := c.open
	opening, closing := c.opening, c.closing
	c.open = false
	c.opening, c.closing = nil, nil
	cb := c.cb
	c.mu.Unlock()

	if opening != nil {
		opening <- result{err: ErrNoRelay}
	}
	if closing != nil {
		closing <- result{err: voice.ErrNotConnected}
	}
	if wasOpen && closing == nil && cb.OnDisconnect != nil {
		cb.OnDisconnect()
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
