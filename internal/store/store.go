// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/riata-onboarding/internal/domain"
)

// Repository persists anonymous visitors. Session state itself stays in
// memory.
type Repository interface {
	// GetUser retrieves a visitor by id. Returns nil, nil when unknown.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a visitor record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a visitor.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetIdleUsers retrieves visitors not seen for longer than ttl.
	GetIdleUsers(ctx context.Context, ttl time.Duration) ([]*domain.User, error)

	// DeleteIdleUsers removes visitors not seen for longer than ttl.
	DeleteIdleUsers(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
