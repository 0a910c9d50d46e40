package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/riata-onboarding/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetUser(ctx, "anon_missing")
	if err != nil || got != nil {
		t.Fatalf("GetUser(missing) = %v, %v", got, err)
	}

	now := time.Now().Truncate(time.Second)
	if err := s.UpsertUser(ctx, &domain.User{
		UserID: "anon_1", Username: "anon-1", LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	got, err = s.GetUser(ctx, "anon_1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got == nil || got.Username != "anon-1" || !got.LastSeenAt.Equal(now) {
		t.Fatalf("GetUser = %+v", got)
	}
}

func TestGetIdleUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for id, seen := range map[string]time.Time{
		"anon_old":   now.Add(-2 * time.Hour),
		"anon_fresh": now,
	} {
		if err := s.UpsertUser(ctx, &domain.User{
			UserID: id, Username: id, LastSeenAt: seen, CreatedAt: seen, UpdatedAt: seen,
		}); err != nil {
			t.Fatalf("UpsertUser: %v", err)
		}
	}

	idle, err := s.GetIdleUsers(ctx, time.Hour)
	if err != nil {
		t.Fatalf("GetIdleUsers: %v", err)
	}
	if len(idle) != 1 || idle[0].UserID != "anon_old" {
		t.Fatalf("GetIdleUsers = %+v", idle)
	}

	if err := s.UpdateLastSeen(ctx, "anon_old", now); err != nil {
		t.Fatalf("UpdateLastSeen: %v", err)
	}
	idle, err = s.GetIdleUsers(ctx, time.Hour)
	if err != nil {
		t.Fatalf("GetIdleUsers: %v", err)
	}
	if len(idle) != 0 {
		t.Fatalf("expected no idle users, got %d", len(idle))
	}
}

func TestDeleteIdleUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	old := now.Add(-48 * time.Hour)

	for _, u := range []*domain.User{
		{UserID: "anon_old", Username: "old", LastSeenAt: old, CreatedAt: old, UpdatedAt: old},
		{UserID: "anon_new", Username: "new", LastSeenAt: now, CreatedAt: now, UpdatedAt: now},
	} {
		if err := s.UpsertUser(ctx, u); err != nil {
			t.Fatalf("UpsertUser: %v", err)
		}
	}

	deleted, err := s.DeleteIdleUsers(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("DeleteIdleUsers: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if u, _ := s.GetUser(ctx, "anon_old"); u != nil {
		t.Fatal("expected anon_old to be deleted")
	}
	if u, _ := s.GetUser(ctx, "anon_new"); u == nil {
		t.Fatal("expected anon_new to remain")
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
