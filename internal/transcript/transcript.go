// Package transcript records the ordered conversation shown to the user.
package transcript

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/riata-onboarding/internal/clock"
)

// Role identifies who produced a transcript entry.
type Role string

const (
	// RoleUser is speech recognised from the learner.
	RoleUser Role = "user"
	// RoleAssistant is speech produced by the voice agent.
	RoleAssistant Role = "assistant"
	// RoleSystem is a locally generated notice.
	RoleSystem Role = "system"
)

// Entry is one immutable transcript line.
type Entry struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is an append-only log in arrival order. It is not safe for
// concurrent use; the owning session serializes access.
type Transcript struct {
	clock   clock.Clock
	entries []Entry
}

// New returns an empty transcript stamped by c.
func New(c clock.Clock) *Transcript {
	if c == nil {
		c = clock.Real()
	}
	return &Transcript{clock: c}
}

// Append records a new entry. It always succeeds.
func (t *Transcript) Append(role Role, content string) Entry {
	e := Entry{
		ID:        newID(),
		Role:      role,
		Content:   content,
		Timestamp: t.clock.Now(),
	}
	t.entries = append(t.entries, e)
	return e
}

// Entries returns a copy of every entry in arrival order.
func (t *Transcript) Entries() []Entry {
	return slices.Clone(t.entries)
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	return len(t.entries)
}

// Count returns the number of entries with the given role.
func (t *Transcript) Count(role Role) int {
	n := 0
	for _, e := range t.entries {
		if e.Role == role {
			n++
		}
	}
	return n
}

// Reset drops every entry.
func (t *Transcript) Reset() {
	t.entries = nil
}

// newID returns a time-ordered identifier. uuid.NewV7 only fails when the
// system random source does, in which case a random v4 is still unique.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
