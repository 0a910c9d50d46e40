package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/riata-onboarding/internal/identity"
	"github.com/ashureev/riata-onboarding/internal/session"
	"github.com/ashureev/riata-onboarding/internal/voice"
)

const (
	testUser = "anon_0123456789abcdef0123456789abcdef"
	testTab  = "tab-1"
)

type browser struct {
	t  *testing.T
	ws *websocket.Conn
}

func (b *browser) read(ctx context.Context) outbound {
	b.t.Helper()
	var msg outbound
	require.NoError(b.t, wsjson.Read(ctx, b.ws, &msg))
	return msg
}

func (b *browser) write(ctx context.Context, msg map[string]any) {
	b.t.Helper()
	require.NoError(b.t, wsjson.Write(ctx, b.ws, msg))
}

func startRelay(t *testing.T, signURL SignURLFunc) (*Manager, *browser) {
	t.Helper()
	mgr := NewManager(signURL)
	h := NewHandler(mgr, nil, "*", true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), testUser, testTab)))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.CloseNow() })

	require.Eventually(t, func() bool { return mgr.Connected(testUser, testTab) }, 2*time.Second, 10*time.Millisecond)
	return mgr, &browser{t: t, ws: ws}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestOpenWithoutRelay(t *testing.T) {
	mgr := NewManager(nil)
	err := mgr.Collaborator(testUser, testTab).Open(context.Background(), voice.Options{AgentID: "a"}, voice.Callbacks{})
	assert.ErrorIs(t, err, ErrNoRelay)
}

func TestOpenConnectToolCallAndDisconnect(t *testing.T) {
	signer := func(_ context.Context, agentID string) (string, error) {
		return "wss://signed/" + agentID, nil
	}
	mgr, b := startRelay(t, signer)
	ctx := testContext(t)

	connected := make(chan string, 1)
	disconnected := make(chan struct{}, 1)
	calls := make(chan voice.ToolCall, 1)
	cb := voice.Callbacks{
		OnConnect:    func(id string) { connected <- id },
		OnDisconnect: func() { disconnected <- struct{}{} },
		OnToolCall: func(call voice.ToolCall) (string, error) {
			calls <- call
			return voice.ToolAck, nil
		},
	}

	collab := mgr.Collaborator(testUser, testTab)
	opened := make(chan error, 1)
	go func() {
		opened <- collab.Open(ctx, voice.Options{AgentID: "agent-1", ConnectionType: voice.ConnectionWebRTC}, cb)
	}()

	req := b.read(ctx)
	assert.Equal(t, TypeOpenSession, req.Type)
	assert.Equal(t, "agent-1", req.AgentID)
	assert.Equal(t, "webrtc", req.ConnectionType)
	assert.Equal(t, "wss://signed/agent-1", req.SignedURL)

	b.write(ctx, map[string]any{"type": TypeConnected, "conversation_id": "conv-1"})
	require.NoError(t, <-opened)
	assert.Equal(t, "conv-1", <-connected)

	b.write(ctx, map[string]any{
		"type":         TypeToolCall,
		"tool_call_id": "call-7",
		"tool_name":    "UPDATE_PROFILE",
		"parameters":   map[string]any{"firstName": "Ada"},
	})
	res := b.read(ctx)
	assert.Equal(t, TypeToolResult, res.Type)
	assert.Equal(t, "call-7", res.ToolCallID)
	assert.Equal(t, voice.ToolAck, res.Result)
	assert.False(t, res.IsError)
	assert.Equal(t, "Ada", (<-calls).Parameters["firstName"])

	require.NoError(t, b.ws.Close(websocket.StatusNormalClosure, "tab closed"))
	select {
	case <-disconnected:
	case <-ctx.Done():
		t.Fatal("expected OnDisconnect after the relay socket closed")
	}
	assert.False(t, mgr.Connected(testUser, testTab))
}

func TestConnectFailed(t *testing.T) {
	mgr, b := startRelay(t, nil)
	ctx := testContext(t)

	collab := mgr.Collaborator(testUser, testTab)
	opened := make(chan error, 1)
	go func() { opened <- collab.Open(ctx, voice.Options{AgentID: "a"}, voice.Callbacks{}) }()

	assert.Equal(t, TypeOpenSession, b.read(ctx).Type)
	b.write(ctx, map[string]any{"type": TypeConnectFailed})
	err := <-opened
	require.Error(t, err)
	assert.Equal(t, "Failed to start conversation", err.Error())
}

func TestCloseAcknowledged(t *testing.T) {
	mgr, b := startRelay(t, nil)
	ctx := testContext(t)

	var disconnects atomic.Int32
	cb := voice.Callbacks{OnDisconnect: func() { disconnects.Add(1) }}
	collab := mgr.Collaborator(testUser, testTab)

	opened := make(chan error, 1)
	go func() { opened <- collab.Open(ctx, voice.Options{AgentID: "a"}, cb) }()
	b.read(ctx)
	b.write(ctx, map[string]any{"type": TypeConnected, "conversation_id": "conv-2"})
	require.NoError(t, <-opened)

	closed := make(chan error, 1)
	go func() { closed <- collab.Close(ctx) }()
	assert.Equal(t, TypeCloseSession, b.read(ctx).Type)
	b.write(ctx, map[string]any{"type": TypeClosed})
	require.NoError(t, <-closed)
	assert.Zero(t, disconnects.Load())

	assert.ErrorIs(t, collab.Close(ctx), voice.ErrNotConnected)
}

func TestCloseFailed(t *testing.T) {
	mgr, b := startRelay(t, nil)
	ctx := testContext(t)

	collab := mgr.Collaborator(testUser, testTab)
	opened := make(chan error, 1)
	go func() { opened <- collab.Open(ctx, voice.Options{AgentID: "a"}, voice.Callbacks{}) }()
	b.read(ctx)
	b.write(ctx, map[string]any{"type": TypeConnected})
	require.NoError(t, <-opened)

	closed := make(chan error, 1)
	go func() { closed <- collab.Close(ctx) }()
	b.read(ctx)
	b.write(ctx, map[string]any{"type": TypeCloseFailed, "message": "network"})
	err := <-closed
	require.Error(t, err)
	assert.Equal(t, "network", err.Error())
}

func TestEventsForwarded(t *testing.T) {
	mgr, b := startRelay(t, nil)
	ctx := testContext(t)

	lines := make(chan voice.TranscriptEvent, 1)
	statuses := make(chan voice.Status, 1)
	errs := make(chan voice.ErrorEvent, 1)
	cb := voice.Callbacks{
		OnMessage: func(ev voice.TranscriptEvent) { lines <- ev },
		OnStatus:  func(st voice.Status) { statuses <- st },
		OnError:   func(ev voice.ErrorEvent) { errs <- ev },
	}

	collab := mgr.Collaborator(testUser, testTab)
	opened := make(chan error, 1)
	go func() { opened <- collab.Open(ctx, voice.Options{AgentID: "a"}, cb) }()
	b.read(ctx)
	b.write(ctx, map[string]any{"type": TypeConnected})
	require.NoError(t, <-opened)

	b.write(ctx, map[string]any{"type": TypeMessage, "message": "Hi there", "source": "user"})
	assert.Equal(t, voice.TranscriptEvent{Message: "Hi there", Source: "user"}, <-lines)

	b.write(ctx, map[string]any{"type": TypeStatus, "connected": true, "speaking": true})
	assert.Equal(t, voice.Status{Connected: true, Speaking: true}, <-statuses)

	b.write(ctx, map[string]any{"type": TypeError})
	assert.Equal(t, "Unknown error", (<-errs).Text())

	b.write(ctx, map[string]any{"type": TypePing})
	assert.Equal(t, TypePong, b.read(ctx).Type)

	require.NoError(t, collab.SendText(ctx, "typed"))
	msg := b.read(ctx)
	assert.Equal(t, TypeSendText, msg.Type)
	assert.Equal(t, "typed", msg.Text)
}

func TestInvalidToolParameters(t *testing.T) {
	mgr, b := startRelay(t, nil)
	ctx := testContext(t)

	collab := mgr.Collaborator(testUser, testTab)
	opened := make(chan error, 1)
	go func() { opened <- collab.Open(ctx, voice.Options{AgentID: "a"}, voice.Callbacks{}) }()
	b.read(ctx)
	b.write(ctx, map[string]any{"type": TypeConnected})
	require.NoError(t, <-opened)

	require.NoError(t, wsjson.Write(ctx, b.ws, json.RawMessage(`{"type":"tool_call","tool_call_id":"x","tool_name":"UPDATE_PROFILE","parameters":[1,2]}`)))
	res := b.read(ctx)
	assert.Equal(t, "x", res.ToolCallID)
	assert.True(t, res.IsError)
}

func TestSessionHangsUpCallConfirmedAfterCancel(t *testing.T) {
	mgr, b := startRelay(t, nil)
	ctx := testContext(t)

	s := session.New(session.Key(testUser, testTab), mgr.Collaborator(testUser, testTab), session.Options{
		Voice: voice.Options{AgentID: "agent-1"},
	})
	started := make(chan error, 1)
	go func() { started <- s.Start(ctx, nil) }()
	assert.Equal(t, TypeOpenSession, b.read(ctx).Type)

	require.NoError(t, s.End(ctx))
	require.ErrorIs(t, <-started, session.ErrStartCancelled)
	assert.Equal(t, TypeCloseSession, b.read(ctx).Type)
	b.write(ctx, map[string]any{"type": TypeClosed})

	// The SDK finishes starting after the cancellation.
	b.write(ctx, map[string]any{"type": TypeConnected, "conversation_id": "conv-late"})
	assert.Equal(t, TypeCloseSession, b.read(ctx).Type)
	b.write(ctx, map[string]any{"type": TypeClosed})

	b.write(ctx, map[string]any{
		"type":         TypeToolCall,
		"tool_call_id": "call-1",
		"tool_name":    "UPDATE_PROFILE",
		"parameters":   map[string]any{"firstName": "Ada"},
	})
	res := b.read(ctx)
	assert.Equal(t, TypeToolResult, res.Type)
	assert.True(t, res.IsError)

	b.write(ctx, map[string]any{"type": TypeMessage, "message": "hello", "source": "ai"})
	b.write(ctx, map[string]any{"type": TypePing})
	assert.Equal(t, TypePong, b.read(ctx).Type)

	snap := s.Snapshot()
	assert.Equal(t, session.StateIdle, snap.State)
	assert.Zero(t, snap.Completion.Score)
	assert.Len(t, snap.Transcript, 1)
}
