package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// SignURLFunc returns an authenticated conversation URL for a private
// agent.
type SignURLFunc func(ctx context.Context, agentID string) (string, error)

// conn is one browser relay socket. Writes are serialized.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(ctx context.Context, msg outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsjson.Write(ctx, c.ws, msg)
}

// Manager tracks the relay socket and collaborator of every browser tab.
type Manager struct {
	mu      sync.RWMutex
	conns   map[string]map[string]*conn
	collabs map[string]map[string]*Collaborator

	signURL SignURLFunc
}

// NewManager creates a relay manager. signURL may be nil for public
// agents.
func NewManager(signURL SignURLFunc) *Manager {
	return &Manager{
		conns:   make(map[string]map[string]*conn),
		collabs: make(map[string]map[string]*Collaborator),
		signURL: signURL,
	}
}

// Collaborator returns the collaborator for a tab, creating it on first
// use.
func (m *Manager) Collaborator(userID, tabID string) *Collaborator {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collabs[userID]; !ok {
		m.collabs[userID] = make(map[string]*Collaborator)
	}
	if c, ok := m.collabs[userID][tabID]; ok {
		return c
	}
	c := &Collaborator{mgr: m, userID: userID, tabID: tabID}
	m.collabs[userID][tabID] = c
	return c
}

func (m *Manager) active(userID, tabID string) *conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tabs, ok := m.conns[userID]; ok {
		return tabs[tabID]
	}
	return nil
}

// Connected reports whether the tab has a relay socket.
func (m *Manager) Connected(userID, tabID string) bool {
	return m.active(userID, tabID) != nil
}

func (m *Manager) register(userID, tabID string, ws *websocket.Conn) *conn {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conns[userID]; !exists {
		m.conns[userID] = make(map[string]*conn)
	}
	if existing, exists := m.conns[userID][tabID]; exists && existing.ws != ws {
		_ = existing.ws.Close(websocket.StatusNormalClosure, "relay replaced")
	}

	c := &conn{ws: ws}
	m.conns[userID][tabID] = c
	slog.Info("Voice relay registered", "user_id", userID, "session_id", tabID)
	return c
}

// unregister removes c and reports whether it was the tab's current
// socket.
func (m *Manager) unregister(userID, tabID string, c *conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	tabs, ok := m.conns[userID]
	if !ok {
		return false
	}
	if current, exists := tabs[tabID]; !exists || current != c {
		return false
	}
	delete(tabs, tabID)
	if len(tabs) == 0 {
		delete(m.conns, userID)
	}
	slog.Info("Voice relay unregistered", "user_id", userID, "session_id", tabID)
	return true
}

// CloseUser drops every relay socket and collaborator of a visitor.
func (m *Manager) CloseUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for tabID, c := range m.conns[userID] {
		_ = c.ws.Close(websocket.StatusNormalClosure, "session closed")
		slog.Info("Voice relay closed", "user_id", userID, "session_id", tabID)
	}
	delete(m.conns, userID)
	delete(m.collabs, userID)
}
