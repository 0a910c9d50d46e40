// Package domain contains the persisted types of the onboarding service.
package domain

import (
	"time"
)

// User is an anonymous visitor identified by the device cookie.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IdleFor returns how long the visitor has been inactive at now.
func (u *User) IdleFor(now time.Time) time.Duration {
	d := now.Sub(u.LastSeenAt)
	if d < 0 {
		return 0
	}
	return d
}

// Expired reports whether the visitor has been idle longer than ttl.
func (u *User) Expired(now time.Time, ttl time.Duration) bool {
	return u.IdleFor(now) > ttl
}
