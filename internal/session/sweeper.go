package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/riata-onboarding/internal/domain"
)

const (
	// DefaultSweepInterval is how often idle visitors are checked.
	DefaultSweepInterval = 5 * time.Minute
	// VisitorRetention is how long a visitor record outlives its last
	// visit. Matches the identity cookie lifetime.
	VisitorRetention = 30 * 24 * time.Hour
)

// IdleUsers lists and forgets visitors by inactivity.
type IdleUsers interface {
	GetIdleUsers(ctx context.Context, ttl time.Duration) ([]*domain.User, error)
	DeleteIdleUsers(ctx context.Context, ttl time.Duration) (int64, error)
}

// StartSweeper runs a background goroutine that periodically closes the
// in-memory sessions of visitors idle for longer than ttl. Visitors with
// a call still open or opening are left alone.
func StartSweeper(ctx context.Context, users IdleUsers, reg *Registry, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, users, reg, ttl)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep performs one pass and returns the number of sessions closed.
func Sweep(ctx context.Context, users IdleUsers, reg *Registry, ttl time.Duration) int {
	idle, err := users.GetIdleUsers(ctx, ttl)
	if err != nil {
		slog.Error("Session sweeper failed to list idle users", "error", err)
		return 0
	}
	if len(idle) == 0 {
		return 0
	}

	closed := 0
	for _, user := range idle {
		if reg.HasActive(user.UserID) {
			slog.Debug("Session sweeper skipping active visitor", "user_id", user.UserID)
			continue
		}
		closed += reg.CloseUser(ctx, user.UserID)
	}
	if closed > 0 {
		slog.Info("Session sweeper cleanup completed", "closed", closed, "idle_users", len(idle))
	}

	if deleted, err := users.DeleteIdleUsers(ctx, VisitorRetention); err != nil {
		slog.Error("Session sweeper failed to delete stale visitors", "error", err)
	} else if deleted > 0 {
		slog.Info("Session sweeper deleted stale visitors", "count", deleted)
	}
	return closed
}
