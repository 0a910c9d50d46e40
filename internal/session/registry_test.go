package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/riata-onboarding/internal/clock"
	"github.com/ashureev/riata-onboarding/internal/domain"
	"github.com/ashureev/riata-onboarding/internal/voice"
)

func newTestRegistry(t *testing.T) (*Registry, map[string]*fakeCollaborator) {
	t.Helper()
	collabs := make(map[string]*fakeCollaborator)
	var mu sync.Mutex
	reg := NewRegistry(func(userID, tabID string) voice.Collaborator {
		mu.Lock()
		defer mu.Unlock()
		c := &fakeCollaborator{confirm: true}
		collabs[Key(userID, tabID)] = c
		return c
	}, Options{Clock: clock.Fake(time.Now())})
	return reg, collabs
}

func TestRegistryGetOrCreate(t *testing.T) {
	reg, _ := newTestRegistry(t)

	a := reg.GetOrCreate("anon_1", "tab-a")
	assert.Same(t, a, reg.GetOrCreate("anon_1", "tab-a"))
	assert.NotSame(t, a, reg.GetOrCreate("anon_1", "tab-b"))
	assert.Nil(t, reg.Get("anon_2", "tab-a"))
	assert.Equal(t, "anon_1:tab-a", a.Key())

	userID, tabID := SplitKey(a.Key())
	assert.Equal(t, "anon_1", userID)
	assert.Equal(t, "tab-a", tabID)
}

func TestRegistryBindsConversation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	s := reg.GetOrCreate("anon_1", "tab-a")

	assert.Nil(t, reg.ByConversation("conv-1"))
	require.NoError(t, s.Start(context.Background(), granted))
	assert.Same(t, s, reg.ByConversation("conv-1"))
	assert.Nil(t, reg.ByConversation(""))
}

func TestRegistryUnbindsEndedConversation(t *testing.T) {
	reg, collabs := newTestRegistry(t)
	s := reg.GetOrCreate("anon_1", "tab-a")
	require.NoError(t, s.Start(context.Background(), granted))
	require.NotNil(t, reg.ByConversation("conv-1"))

	collabs["anon_1:tab-a"].callbacks().OnDisconnect()

	assert.Equal(t, StateEnded, s.State())
	assert.Nil(t, reg.ByConversation("conv-1"))
}

func TestRegistryUnbindsConversationWhenStartFailsAfterConfirm(t *testing.T) {
	collab := &fakeCollaborator{confirm: true, openErr: errors.New("stream setup failed")}
	reg := NewRegistry(func(string, string) voice.Collaborator { return collab }, Options{Clock: clock.Fake(time.Now())})
	s := reg.GetOrCreate("anon_1", "tab-a")

	require.Error(t, s.Start(context.Background(), granted))
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, reg.ByConversation("conv-1"))
	assert.Empty(t, s.Snapshot().ConversationID)
	require.Eventually(t, func() bool { return collab.closeCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRegistryCloseUser(t *testing.T) {
	reg, collabs := newTestRegistry(t)
	s := reg.GetOrCreate("anon_1", "tab-a")
	reg.GetOrCreate("anon_1", "tab-b")
	require.NoError(t, s.Start(context.Background(), granted))

	assert.True(t, reg.HasActive("anon_1"))
	assert.Equal(t, 2, reg.CloseUser(context.Background(), "anon_1"))
	assert.Nil(t, reg.Get("anon_1", "tab-a"))
	assert.Nil(t, reg.ByConversation("conv-1"))
	assert.Equal(t, 1, collabs["anon_1:tab-a"].closed)
	assert.Zero(t, collabs["anon_1:tab-b"].closed)
	assert.Zero(t, reg.CloseUser(context.Background(), "anon_1"))
}

func TestRegistryCloseUserNotifiesHooks(t *testing.T) {
	reg, _ := newTestRegistry(t)
	var released []string
	reg.OnUserClosed(func(userID string) { released = append(released, userID) })

	reg.GetOrCreate("anon_1", "tab-a")
	reg.GetOrCreate("anon_2", "tab-a")
	reg.CloseUser(context.Background(), "anon_1")
	assert.Equal(t, []string{"anon_1"}, released)

	reg.CloseUser(context.Background(), "anon_1")
	assert.Len(t, released, 1, "unknown visitors are not reported")

	reg.Shutdown(context.Background())
	assert.Equal(t, []string{"anon_1", "anon_2"}, released)
	assert.Empty(t, reg.Users())
}

type stubIdleUsers struct {
	users []*domain.User
	err   error
}

func (s stubIdleUsers) GetIdleUsers(context.Context, time.Duration) ([]*domain.User, error) {
	return s.users, s.err
}

func (s stubIdleUsers) DeleteIdleUsers(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func TestSweepSkipsActiveVisitors(t *testing.T) {
	reg, _ := newTestRegistry(t)
	active := reg.GetOrCreate("anon_active", "tab")
	require.NoError(t, active.Start(context.Background(), granted))
	reg.GetOrCreate("anon_idle", "tab")

	idle := stubIdleUsers{users: []*domain.User{{UserID: "anon_active"}, {UserID: "anon_idle"}}}
	closed := Sweep(context.Background(), idle, reg, time.Hour)

	assert.Equal(t, 1, closed)
	assert.NotNil(t, reg.Get("anon_active", "tab"))
	assert.Nil(t, reg.Get("anon_idle", "tab"))
}

func TestSweepListError(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.GetOrCreate("anon_1", "tab")
	closed := Sweep(context.Background(), stubIdleUsers{err: errors.New("db down")}, reg, time.Hour)
	assert.Zero(t, closed)
	assert.NotNil(t, reg.Get("anon_1", "tab"))
}
