package session

import (
	"time"

	"github.com/ashureev/riata-onboarding/internal/profile"
	"github.com/ashureev/riata-onboarding/internal/toollog"
	"github.com/ashureev/riata-onboarding/internal/transcript"
)

const missingPreviewLimit = 3

// Completion summarizes how much of the profile has been collected.
type Completion struct {
	Score          int      `json:"score"`
	Filled         int      `json:"filled"`
	Total          int      `json:"total"`
	Remaining      int      `json:"remaining"`
	Complete       bool     `json:"complete"`
	Missing        []string `json:"missing"`
	MissingPreview []string `json:"missing_preview,omitempty"`
	MissingMore    int      `json:"missing_more,omitempty"`
}

// Stats are the counters shown on the dashboard.
type Stats struct {
	Updates         int64 `json:"updates"`
	FieldsExtracted int64 `json:"fields_extracted"`
	UserMessages    int   `json:"user_messages"`
}

// RecentUpdate is one entry of the recent-updates list.
type RecentUpdate struct {
	Seq     int64     `json:"seq"`
	Time    string    `json:"time"`
	At      time.Time `json:"at"`
	Summary string    `json:"summary"`
	Keys    []string  `json:"keys"`
}

// ProfileView is published whenever the profile changes.
type ProfileView struct {
	Profile       profile.Record `json:"profile"`
	Completion    Completion     `json:"completion"`
	Stats         Stats          `json:"stats"`
	RecentUpdates []RecentUpdate `json:"recent_updates"`
}

// Snapshot is the full render state of a session.
type Snapshot struct {
	Key            string    `json:"key"`
	State          State     `json:"state"`
	ConversationID string    `json:"conversation_id,omitempty"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	Duration       string    `json:"duration"`
	Speaking       bool      `json:"speaking"`
	Celebrating    bool      `json:"celebrating"`
	ProfileView
	Transcript []transcript.Entry `json:"transcript"`
}

// Snapshot returns a copy of the session's render state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	entries := s.transcript.Entries()
	if entries == nil {
		entries = []transcript.Entry{}
	}
	return Snapshot{
		Key:            s.key,
		State:          s.state,
		ConversationID: s.conversationID,
		StartedAt:      s.startedAt,
		Duration:       s.durationLocked(),
		Speaking:       s.speaking,
		Celebrating:    s.celebrating,
		ProfileView:    s.profileViewLocked(),
		Transcript:     entries,
	}
}

func (s *Session) profileViewLocked() ProfileView {
	rec := s.profile.Record()
	return ProfileView{
		Profile:    rec,
		Completion: completionOf(&rec),
		Stats: Stats{
			Updates:         s.tools.Total(),
			FieldsExtracted: s.tools.FieldsTotal(),
			UserMessages:    s.transcript.Count(transcript.RoleUser),
		},
		RecentUpdates: recentUpdates(s.tools.Recent(toollog.RecentLimit)),
	}
}

func completionOf(rec *profile.Record) Completion {
	missing := rec.Missing()
	total := len(profile.TrackedFields)
	c := Completion{
		Score:     rec.Score(),
		Filled:    rec.FilledCount(),
		Total:     total,
		Remaining: rec.Remaining(),
		Missing:   missing,
	}
	c.Complete = c.Score == 100
	// The preview only appears once collection has started and is not done.
	if n := len(missing); n > 0 && n < total {
		limit := min(n, missingPreviewLimit)
		c.MissingPreview = missing[:limit:limit]
		c.MissingMore = n - limit
	}
	return c
}

func recentUpdates(events []toollog.Event) []RecentUpdate {
	out := make([]RecentUpdate, 0, len(events))
	for _, ev := range events {
		out = append(out, RecentUpdate{
			Seq:     ev.Seq,
			Time:    ev.Timestamp.Format("15:04"),
			At:      ev.Timestamp,
			Summary: ev.Summary(),
			Keys:    ev.Keys(),
		})
	}
	return out
}
