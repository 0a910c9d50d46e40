package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/riata-onboarding/internal/voice"
)

// CollaboratorFactory builds the platform handle for a new session.
type CollaboratorFactory func(userID, tabID string) voice.Collaborator

// Registry holds the live sessions, keyed by visitor and browser tab.
type Registry struct {
	mu             sync.RWMutex
	sessions       map[string]map[string]*Session
	byKey          map[string]*Session
	byConversation map[string]*Session

	factory  CollaboratorFactory
	opts     Options
	released []func(userID string)
}

// NewRegistry returns an empty registry. Every session it creates uses a
// copy of opts.
func NewRegistry(factory CollaboratorFactory, opts Options) *Registry {
	return &Registry{
		sessions:       make(map[string]map[string]*Session),
		byKey:          make(map[string]*Session),
		byConversation: make(map[string]*Session),
		factory:        factory,
		opts:           opts,
	}
}

// OnUserClosed registers fn to run after CloseUser drops a visitor's
// sessions. Call it before serving requests.
func (r *Registry) OnUserClosed(fn func(userID string)) {
	r.released = append(r.released, fn)
}

// Key joins a visitor and tab into a session key.
func Key(userID, tabID string) string {
	return userID + ":" + tabID
}

// SplitKey reverses Key.
func SplitKey(key string) (userID, tabID string) {
	userID, tabID, _ = strings.Cut(key, ":")
	return userID, tabID
}

// GetOrCreate returns the session for userID and tabID, creating it if
// needed.
func (r *Registry) GetOrCreate(userID, tabID string) *Session {
	if s := r.Get(userID, tabID); s != nil {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[userID]; !ok {
		r.sessions[userID] = make(map[string]*Session)
	}
	if s, ok := r.sessions[userID][tabID]; ok {
		return s
	}

	opts := r.opts
	opts.OnConnected = r.bindConversation
	opts.OnEnded = r.unbindConversation
	var collab voice.Collaborator
	if r.factory != nil {
		collab = r.factory(userID, tabID)
	}
	s := New(Key(userID, tabID), collab, opts)
	r.sessions[userID][tabID] = s
	r.byKey[s.key] = s
	slog.Info("Voice session registered", "user_id", userID, "session_id", tabID)
	return s
}

// Get returns the session for userID and tabID, or nil.
func (r *Registry) Get(userID, tabID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tabs, ok := r.sessions[userID]; ok {
		return tabs[tabID]
	}
	return nil
}

// ByConversation returns the session bound to a platform conversation id,
// or nil.
func (r *Registry) ByConversation(conversationID string) *Session {
	if conversationID == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConversation[conversationID]
}

// bindConversation runs under the session lock. It must not call back
// into the session.
func (r *Registry) bindConversation(key, conversationID string) {
	if conversationID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byKey[key]; ok {
		r.byConversation[conversationID] = s
	}
}

// unbindConversation runs under the session lock.
func (r *Registry) unbindConversation(snap Snapshot) {
	if snap.ConversationID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byConversation[snap.ConversationID]; ok && s.key == snap.Key {
		delete(r.byConversation, snap.ConversationID)
	}
}

// Users returns the ids of visitors holding at least one session.
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}

// HasActive reports whether any of the user's sessions has a call open or
// opening.
func (r *Registry) HasActive(userID string) bool {
	r.mu.RLock()
	tabs := make([]*Session, 0, len(r.sessions[userID]))
	for _, s := range r.sessions[userID] {
		tabs = append(tabs, s)
	}
	r.mu.RUnlock()

	for _, s := range tabs {
		if s.State().Active() {
			return true
		}
	}
	return false
}

// CloseUser shuts down and forgets every session of a visitor.
func (r *Registry) CloseUser(ctx context.Context, userID string) int {
	r.mu.Lock()
	tabs, ok := r.sessions[userID]
	if !ok {
		r.mu.Unlock()
		return 0
	}
	delete(r.sessions, userID)
	for _, s := range tabs {
		delete(r.byKey, s.key)
	}
	for conv, s := range r.byConversation {
		if r.byKey[s.key] != s {
			delete(r.byConversation, conv)
		}
	}
	r.mu.Unlock()

	for tabID, s := range tabs {
		s.Shutdown(ctx)
		slog.Info("Voice session closed", "user_id", userID, "session_id", tabID)
	}
	for _, fn := range r.released {
		fn(userID)
	}
	return len(tabs)
}

// Shutdown closes every session.
func (r *Registry) Shutdown(ctx context.Context) {
	for _, userID := range r.Users() {
		r.CloseUser(ctx, userID)
	}
}
